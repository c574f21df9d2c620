// Package worker consumes analysis jobs from SQS and runs them through the
// analysis pipeline.
//
// Records in a batch are processed independently. Failures that can heal
// (upstream outages, queue hiccups) are re-published with exponential
// backoff, and jobs that exhaust their retry budget are forwarded to the
// dead letter queue. Only infrastructure failures inside the retry path
// itself surface as partial batch failures, so SQS redelivers exactly the
// records that still need work.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"coldtrace/internal/analysis"
	"coldtrace/internal/types"
)

// Analyzer runs queued jobs. Implemented by analysis.Service; tests supply
// fakes.
type Analyzer interface {
	AnalyzeTrip(ctx context.Context, req types.TripRequest) (*types.TripAnalysis, error)
	AnalyzeConditions(ctx context.Context, req types.ConditionsRequest) (*types.TripAnalysis, error)
}

// JobPublisher re-publishes jobs for retry scheduling and dead-letter
// forwarding. Implemented by queue.Dispatcher.
type JobPublisher interface {
	Dispatch(ctx context.Context, job types.AnalysisJob, reason string) error
	Redispatch(ctx context.Context, job types.AnalysisJob, reason string, delay time.Duration) error
}

// RetryPolicy defines the exponential backoff parameters for job retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy backs off 30s, 2m, 8m across the three attempts,
// staying inside the 15 minute SQS delay ceiling.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     30 * time.Second,
	MaxDelay:      10 * time.Minute,
	BackoffFactor: 4.0,
}

// NextDelay computes the backoff before the given retry attempt:
// min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffFactor
	}
	d := time.Duration(delay)
	if d > p.MaxDelay || d < 0 {
		// The duration overflows long before the float does.
		d = p.MaxDelay
	}
	return d
}

// Handler holds the dependencies for the analysis worker Lambda handler.
type Handler struct {
	analyzer    Analyzer
	retries     JobPublisher
	deadLetters JobPublisher
	metrics     analysis.AnalysisMetrics
	policy      RetryPolicy
	logger      types.Logger
}

// NewHandler wires the worker. retries and deadLetters may be nil: without
// a retry publisher, retryable failures surface as partial batch failures
// so SQS redelivers the original record; without a dead-letter publisher,
// jobs that exhaust their retries are dropped with an error log.
func NewHandler(analyzer Analyzer, retries, deadLetters JobPublisher, metrics analysis.AnalysisMetrics, policy RetryPolicy, logger types.Logger) *Handler {
	if metrics == nil {
		metrics = analysis.NoopMetrics{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	return &Handler{
		analyzer:    analyzer,
		retries:     retries,
		deadLetters: deadLetters,
		metrics:     metrics,
		policy:      policy,
		logger:      logger,
	}
}

// Handle processes an SQS event containing one or more analysis jobs.
// Lambda SQS integration uses partial batch responses: records that fail
// processing are returned in batchItemFailures so SQS retries only them.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process SQS record",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord handles a single SQS record end to end.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var job types.AnalysisJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		h.logger.Error("failed to unmarshal analysis job",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure. ACK so it cannot poison the queue.
		return nil
	}

	logger := h.logger.With(
		"job_id", job.JobID,
		"batch_id", job.BatchID,
		"action", string(job.Action),
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)

	// Queue lag from enqueue to processing start.
	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, queueNameFromARN(record.EventSourceARN), time.Since(sentAt))
		}
	}

	if err := job.Validate(); err != nil {
		// A job that cannot be routed will never succeed on redelivery.
		logger.Error("dropping unroutable analysis job", "error", err.Error())
		return nil
	}

	logger.Info("processing analysis job")

	result, err := h.runJob(ctx, job)
	if err == nil {
		logger.Info("analysis job completed",
			"request_id", result.RequestID,
			"status", string(result.Prediction.Status),
		)
		return nil
	}

	return h.handleFailure(ctx, job, err, logger)
}

func (h *Handler) runJob(ctx context.Context, job types.AnalysisJob) (*types.TripAnalysis, error) {
	switch job.Action {
	case types.ActionAnalyzeTrip:
		return h.analyzer.AnalyzeTrip(ctx, *job.Trip)
	case types.ActionAnalyzeConditions:
		return h.analyzer.AnalyzeConditions(ctx, *job.Conditions)
	default:
		// Unreachable after Validate; kept so the switch is total.
		return nil, fmt.Errorf("worker: unroutable action %q", job.Action)
	}
}

// handleFailure classifies a job failure. Retryable errors re-publish with
// backoff and ACK the original record; exhausted jobs move to the dead
// letter queue; permanent failures stop here. Publish failures propagate so
// the record is redelivered instead of lost.
func (h *Handler) handleFailure(ctx context.Context, job types.AnalysisJob, jobErr error, logger types.Logger) error {
	if !retryable(jobErr) {
		logger.Error("analysis job failed permanently", "error", jobErr.Error())
		return nil
	}

	if job.RetryCount >= h.policy.MaxAttempts {
		logger.Error("analysis job exhausted retries",
			"max_attempts", h.policy.MaxAttempts,
			"error", jobErr.Error(),
		)
		if h.deadLetters == nil {
			return nil
		}
		if err := h.deadLetters.Dispatch(ctx, job, "max_retries_exceeded"); err != nil {
			return fmt.Errorf("worker: failed to forward job %s to dead letter queue: %w", job.JobID, err)
		}
		logger.Warn("analysis job forwarded to dead letter queue")
		return nil
	}

	if h.retries == nil {
		return jobErr
	}

	delay := h.policy.NextDelay(job.RetryCount)
	if err := h.retries.Redispatch(ctx, job, "transient_failure", delay); err != nil {
		return fmt.Errorf("worker: failed to schedule retry for job %s: %w", job.JobID, err)
	}
	logger.Info("analysis job retry scheduled",
		"retry_count", job.RetryCount+1,
		"delay_seconds", int(delay.Seconds()),
	)
	return nil
}

// retryable reports whether a job failure can heal on redelivery. AppErrors
// carry their own classification; unclassified errors are treated as
// transient and spent against the retry budget.
func retryable(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return true
}

// queueNameFromARN extracts the queue name from an SQS event source ARN
// (arn:aws:sqs:region:account:queue-name).
func queueNameFromARN(arn string) string {
	if i := strings.LastIndex(arn, ":"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
// Used for the SQS SentTimestamp attribute when calculating queue lag.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)      {}
func (noopLogger) Error(string, ...any)     {}
func (noopLogger) Warn(string, ...any)      {}
func (noopLogger) With(...any) types.Logger { return noopLogger{} }

var _ types.Logger = noopLogger{}
