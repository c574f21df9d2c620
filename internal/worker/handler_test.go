package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"coldtrace/internal/types"
)

// --- Fakes ---

type fakeAnalyzer struct {
	tripCalls      int
	condCalls      int
	lastTrip       types.TripRequest
	lastConditions types.ConditionsRequest
	result         *types.TripAnalysis
	err            error
}

func (f *fakeAnalyzer) AnalyzeTrip(_ context.Context, req types.TripRequest) (*types.TripAnalysis, error) {
	f.tripCalls++
	f.lastTrip = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) AnalyzeConditions(_ context.Context, req types.ConditionsRequest) (*types.TripAnalysis, error) {
	f.condCalls++
	f.lastConditions = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type publishedJob struct {
	job    types.AnalysisJob
	reason string
	delay  time.Duration
}

// fakePublisher records Dispatch/Redispatch calls; errors are returned
// after recording so tests can still see the attempt.
type fakePublisher struct {
	dispatched    []publishedJob
	redispatched  []publishedJob
	dispatchErr   error
	redispatchErr error
}

func (f *fakePublisher) Dispatch(_ context.Context, job types.AnalysisJob, reason string) error {
	f.dispatched = append(f.dispatched, publishedJob{job: job, reason: reason})
	return f.dispatchErr
}

func (f *fakePublisher) Redispatch(_ context.Context, job types.AnalysisJob, reason string, delay time.Duration) error {
	f.redispatched = append(f.redispatched, publishedJob{job: job, reason: reason, delay: delay})
	return f.redispatchErr
}

type lagRecord struct {
	queue string
	lag   time.Duration
}

type fakeMetrics struct {
	lags []lagRecord
}

func (f *fakeMetrics) RecordAnalysis(context.Context, types.AnalysisAction, types.SpoilageStatus, string, time.Duration) {
}
func (f *fakeMetrics) RecordFailure(context.Context, types.AnalysisAction) {}
func (f *fakeMetrics) RecordModelUnavailable(context.Context)              {}
func (f *fakeMetrics) RecordDangerZones(context.Context, string, int)      {}
func (f *fakeMetrics) RecordQueueLag(_ context.Context, queue string, lag time.Duration) {
	f.lags = append(f.lags, lagRecord{queue, lag})
}

// testLogger implements types.Logger for tests.
type testLogger struct{}

func (l *testLogger) Info(_ string, _ ...any)    {}
func (l *testLogger) Error(_ string, _ ...any)   {}
func (l *testLogger) Warn(_ string, _ ...any)    {}
func (l *testLogger) With(_ ...any) types.Logger { return l }

// --- Helpers ---

const testSourceARN = "arn:aws:sqs:ap-south-1:123456789:coldtrace-analysis"

func tripJob(retryCount int) types.AnalysisJob {
	return types.AnalysisJob{
		JobID:      "job_1",
		Action:     types.ActionAnalyzeTrip,
		RetryCount: retryCount,
		TraceID:    "trace_1",
		Trip: &types.TripRequest{
			Origin:      "Nashik, Maharashtra",
			Destination: "Mumbai, Maharashtra",
			CropType:    "Mango",
		},
	}
}

func conditionsJob() types.AnalysisJob {
	return types.AnalysisJob{
		JobID:  "job_cond",
		Action: types.ActionAnalyzeConditions,
		Conditions: &types.ConditionsRequest{
			TemperatureC: 34.5,
			Humidity:     80,
			TransitHours: 6,
			CropType:     "Tomato",
		},
	}
}

func buildEvent(jobs ...types.AnalysisJob) events.SQSEvent {
	records := make([]events.SQSMessage, len(jobs))
	for i, job := range jobs {
		body, _ := json.Marshal(job)
		records[i] = events.SQSMessage{
			MessageId:      fmt.Sprintf("msg-%d", i),
			Body:           string(body),
			EventSourceARN: testSourceARN,
			Attributes: map[string]string{
				"SentTimestamp": "1767945600000",
			},
		}
	}
	return events.SQSEvent{Records: records}
}

func safeResult() *types.TripAnalysis {
	return &types.TripAnalysis{
		RequestID:  "req_1",
		Prediction: types.SpoilagePrediction{Status: types.StatusSafe},
	}
}

func newTestHandler(a *fakeAnalyzer, retries, deadLetters JobPublisher, m *fakeMetrics) *Handler {
	return NewHandler(a, retries, deadLetters, m, DefaultRetryPolicy, &testLogger{})
}

// --- Tests ---

func TestHandle_ProcessesTripJob(t *testing.T) {
	a := &fakeAnalyzer{result: safeResult()}
	m := &fakeMetrics{}
	h := newTestHandler(a, nil, nil, m)

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(0)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected 0 batch item failures, got %d", len(resp.BatchItemFailures))
	}
	if a.tripCalls != 1 {
		t.Fatalf("expected 1 AnalyzeTrip call, got %d", a.tripCalls)
	}
	if a.lastTrip.Origin != "Nashik, Maharashtra" {
		t.Errorf("trip request not passed through, got origin %q", a.lastTrip.Origin)
	}
	if len(m.lags) != 1 {
		t.Fatalf("expected 1 queue lag record, got %d", len(m.lags))
	}
	if m.lags[0].queue != "coldtrace-analysis" {
		t.Errorf("expected queue name from event source ARN, got %q", m.lags[0].queue)
	}
}

func TestHandle_ProcessesConditionsJob(t *testing.T) {
	a := &fakeAnalyzer{result: safeResult()}
	h := newTestHandler(a, nil, nil, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(conditionsJob()))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected 0 failures, got %d", len(resp.BatchItemFailures))
	}
	if a.condCalls != 1 {
		t.Fatalf("expected 1 AnalyzeConditions call, got %d", a.condCalls)
	}
	if a.lastConditions.CropType != "Tomato" {
		t.Errorf("conditions request not passed through, got crop %q", a.lastConditions.CropType)
	}
}

func TestHandle_MalformedBodyAcked(t *testing.T) {
	a := &fakeAnalyzer{result: safeResult()}
	h := newTestHandler(a, nil, nil, &fakeMetrics{})

	sqsEvent := events.SQSEvent{
		Records: []events.SQSMessage{
			{
				MessageId:      "msg-bad",
				Body:           "{{not valid json}}",
				EventSourceARN: testSourceARN,
			},
		},
	}

	resp, err := h.Handle(context.Background(), sqsEvent)
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	// Malformed messages are ACKed to prevent poison pill loops.
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected 0 batch item failures, got %d", len(resp.BatchItemFailures))
	}
	if a.tripCalls+a.condCalls != 0 {
		t.Errorf("analyzer must not run for malformed bodies")
	}
}

func TestHandle_UnroutableJobAcked(t *testing.T) {
	a := &fakeAnalyzer{result: safeResult()}
	h := newTestHandler(a, nil, nil, &fakeMetrics{})

	job := types.AnalysisJob{JobID: "job_x", Action: types.AnalysisAction("reticulate")}

	resp, err := h.Handle(context.Background(), buildEvent(job))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("unroutable jobs can never succeed on redelivery, expected ACK, got %d failures",
			len(resp.BatchItemFailures))
	}
	if a.tripCalls+a.condCalls != 0 {
		t.Errorf("analyzer must not run for unroutable jobs")
	}
}

func TestHandle_PermanentFailureAcked(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeModelArtifact, "model artifact invalid", nil)}
	retries := &fakePublisher{}
	deadLetters := &fakePublisher{}
	h := newTestHandler(a, retries, deadLetters, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(0)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("non-retryable failures should ACK, got %d failures", len(resp.BatchItemFailures))
	}
	if len(retries.redispatched) != 0 {
		t.Errorf("non-retryable failures must not be redispatched, got %d", len(retries.redispatched))
	}
	if len(deadLetters.dispatched) != 0 {
		t.Errorf("non-retryable failures must not reach the DLQ, got %d", len(deadLetters.dispatched))
	}
}

func TestHandle_RetryableFailureSchedulesRetry(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamGeocoding, "geocoder unavailable", nil)}
	retries := &fakePublisher{}
	h := newTestHandler(a, retries, nil, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(0)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("scheduled retries ACK the original record, got %d failures", len(resp.BatchItemFailures))
	}
	if len(retries.redispatched) != 1 {
		t.Fatalf("expected 1 redispatch, got %d", len(retries.redispatched))
	}
	call := retries.redispatched[0]
	if call.reason != "transient_failure" {
		t.Errorf("expected reason %q, got %q", "transient_failure", call.reason)
	}
	if call.delay != 30*time.Second {
		t.Errorf("expected first-attempt delay 30s, got %v", call.delay)
	}
	if call.job.RetryCount != 0 {
		t.Errorf("the publisher owns the retry count bump, got %d", call.job.RetryCount)
	}
}

func TestHandle_BackoffGrowsWithRetryCount(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamRouting, "router unavailable", nil)}
	retries := &fakePublisher{}
	h := newTestHandler(a, retries, nil, &fakeMetrics{})

	if _, err := h.Handle(context.Background(), buildEvent(tripJob(2))); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(retries.redispatched) != 1 {
		t.Fatalf("expected 1 redispatch, got %d", len(retries.redispatched))
	}
	if got := retries.redispatched[0].delay; got != 8*time.Minute {
		t.Errorf("expected third-attempt delay 8m, got %v", got)
	}
}

func TestHandle_ExhaustedRetriesForwardToDLQ(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamWeather, "weather api unavailable", nil)}
	retries := &fakePublisher{}
	deadLetters := &fakePublisher{}
	h := newTestHandler(a, retries, deadLetters, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(3)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("DLQ forwarding ACKs the record, got %d failures", len(resp.BatchItemFailures))
	}
	if len(retries.redispatched) != 0 {
		t.Errorf("exhausted jobs must not be retried again, got %d redispatches", len(retries.redispatched))
	}
	if len(deadLetters.dispatched) != 1 {
		t.Fatalf("expected 1 DLQ dispatch, got %d", len(deadLetters.dispatched))
	}
	call := deadLetters.dispatched[0]
	if call.reason != "max_retries_exceeded" {
		t.Errorf("expected reason %q, got %q", "max_retries_exceeded", call.reason)
	}
	if call.job.JobID != "job_1" {
		t.Errorf("expected original job forwarded, got %q", call.job.JobID)
	}
}

func TestHandle_ExhaustedWithoutDLQIsDropped(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamWeather, "weather api unavailable", nil)}
	h := newTestHandler(a, &fakePublisher{}, nil, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(3)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected drop with log, got %d failures", len(resp.BatchItemFailures))
	}
}

func TestHandle_RetryPublishFailureMarksRecord(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamGeocoding, "geocoder unavailable", nil)}
	retries := &fakePublisher{redispatchErr: errors.New("sqs unavailable")}
	h := newTestHandler(a, retries, nil, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(0)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected 1 batch item failure, got %d", len(resp.BatchItemFailures))
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "msg-0" {
		t.Errorf("expected failing record msg-0, got %q", resp.BatchItemFailures[0].ItemIdentifier)
	}
}

func TestHandle_DLQPublishFailureMarksRecord(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamGeocoding, "geocoder unavailable", nil)}
	deadLetters := &fakePublisher{dispatchErr: errors.New("sqs unavailable")}
	h := newTestHandler(a, &fakePublisher{}, deadLetters, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(3)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected 1 batch item failure, got %d", len(resp.BatchItemFailures))
	}
}

func TestHandle_NoRetryPublisherFallsBackToRedelivery(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamGeocoding, "geocoder unavailable", nil)}
	h := newTestHandler(a, nil, nil, &fakeMetrics{})

	resp, err := h.Handle(context.Background(), buildEvent(tripJob(0)))
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Errorf("without a retry publisher SQS redelivery takes over, expected 1 failure, got %d",
			len(resp.BatchItemFailures))
	}
}

func TestHandle_PartialBatchIsolation(t *testing.T) {
	a := &fakeAnalyzer{err: types.NewAppError(types.ErrCodeUpstreamRouting, "router unavailable", nil)}
	h := newTestHandler(a, nil, nil, &fakeMetrics{})

	event := buildEvent(tripJob(0))
	event.Records = append(event.Records, events.SQSMessage{
		MessageId:      "msg-bad",
		Body:           "not json",
		EventSourceARN: testSourceARN,
	})

	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected exactly the retryable record to fail, got %d failures", len(resp.BatchItemFailures))
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "msg-0" {
		t.Errorf("expected msg-0 marked for redelivery, got %q", resp.BatchItemFailures[0].ItemIdentifier)
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 30 * time.Second},
		{attempt: 1, want: 2 * time.Minute},
		{attempt: 2, want: 8 * time.Minute},
		{attempt: 3, want: 10 * time.Minute}, // capped at MaxDelay
		{attempt: -1, want: 30 * time.Second},
	}
	for _, tt := range tests {
		if got := DefaultRetryPolicy.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestQueueNameFromARN(t *testing.T) {
	if got := queueNameFromARN(testSourceARN); got != "coldtrace-analysis" {
		t.Errorf("expected queue name 'coldtrace-analysis', got %q", got)
	}
	if got := queueNameFromARN("no-colons-here"); got != "no-colons-here" {
		t.Errorf("expected passthrough for malformed ARN, got %q", got)
	}
}

func TestParseMillisTimestamp(t *testing.T) {
	ts, err := parseMillisTimestamp("1767945600000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := time.UnixMilli(1767945600000)
	if !ts.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, ts)
	}
}

func TestParseMillisTimestamp_Invalid(t *testing.T) {
	if _, err := parseMillisTimestamp("not-a-number"); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestNewHandler_Defaults(t *testing.T) {
	h := NewHandler(&fakeAnalyzer{result: safeResult()}, nil, nil, nil, RetryPolicy{}, nil)
	if h.policy.MaxAttempts != DefaultRetryPolicy.MaxAttempts {
		t.Errorf("expected default retry policy, got MaxAttempts=%d", h.policy.MaxAttempts)
	}

	// Noop metrics and logger must hold up under use.
	if _, err := h.Handle(context.Background(), buildEvent(tripJob(0))); err != nil {
		t.Fatalf("Handle with defaulted dependencies failed: %v", err)
	}
}
