// Package e2e exercises the full ColdTrace analysis pipeline in process:
//
//	Dispatcher (SQS) -> Worker handler -> Analysis service -> Providers -> Session store
//
// The external data providers are served by a stub HTTP transport injected
// through external.WithHTTPClient, so the suite is hermetic: it runs under a
// plain `go test ./test/e2e/` with no network access and no local stack.
// Everything downstream of the transport is the real wiring in its
// production shape: the Google provider clients and fallback chains, the
// embedded model artifact, the crop catalog, knowledge retrieval, narrative
// generation, and the in-memory session store.
package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"coldtrace/internal/analysis"
	"coldtrace/internal/config"
	"coldtrace/internal/crops"
	"coldtrace/internal/external"
	"coldtrace/internal/knowledge"
	"coldtrace/internal/model"
	"coldtrace/internal/narrative"
	"coldtrace/internal/risk"
	"coldtrace/internal/session"
	"coldtrace/internal/telemetry"
	"coldtrace/internal/types"
)

// ---------------------------------------------------------------------------
// Provider stub
//
// Each provider endpoint gets its own fake host so the transport can route
// requests without parsing paths. Addresses outside the fixture table
// geocode to ZERO_RESULTS from Google and an empty result set from
// Nominatim, which drives the fallback chain to a real exhaustion error.
// ---------------------------------------------------------------------------

const (
	stubGeocodeURL    = "https://maps.test/geocode/json"
	stubRoutesURL     = "https://routes.test/directions/v2:computeRoutes"
	stubWeatherURL    = "https://weather.test/v1/currentConditions:lookup"
	stubAirQualityURL = "https://air.test/v1/currentConditions:lookup"
	stubNominatimURL  = "https://nominatim.test"
	stubOSRMURL       = "https://osrm.test"
)

// geocodeFixture is one resolvable place in the stub's world.
type geocodeFixture struct {
	lat, lon float64
	display  string
}

var geocodeFixtures = map[string]geocodeFixture{
	"Nashik": {lat: 19.9975, lon: 73.7898, display: "Nashik, Maharashtra, India"},
	"Mumbai": {lat: 19.0760, lon: 72.8777, display: "Mumbai, Maharashtra, India"},
}

// routesResponse describes a 166 km, 4 hour drive whose five step start
// locations become the route's sampling waypoints.
const routesResponse = `{
  "routes": [
    {
      "duration": "14400s",
      "distanceMeters": 166000,
      "legs": [
        {
          "steps": [
            {"startLocation": {"latLng": {"latitude": 19.9975, "longitude": 73.7898}}},
            {"startLocation": {"latLng": {"latitude": 19.7515, "longitude": 73.5674}}},
            {"startLocation": {"latLng": {"latitude": 19.4536, "longitude": 73.2936}}},
            {"startLocation": {"latLng": {"latitude": 19.2183, "longitude": 73.0978}}},
            {"startLocation": {"latLng": {"latitude": 19.0810, "longitude": 72.8910}}}
          ]
        }
      ]
    }
  ]
}`

// weatherResponse reports 32.5 C at 78% humidity for every waypoint, which
// keeps a short mango trip inside the Safe band.
const weatherResponse = `{
  "temperature": {"degrees": 32.5},
  "feelsLikeTemperature": {"degrees": 35.1},
  "relativeHumidity": 78,
  "weatherCondition": {"description": {"text": "Partly sunny"}, "type": "PARTLY_CLOUDY"},
  "uvIndex": 7,
  "wind": {"speed": {"value": 14}},
  "precipitation": {"probability": {"percent": 10}},
  "cloudCover": 20
}`

const airQualityResponse = `{
  "indexes": [
    {"aqi": 152, "category": "Moderately polluted", "dominantPollutant": "pm25"}
  ],
  "pollutants": [
    {"code": "pm25", "concentration": {"value": 65.2}}
  ]
}`

// stubCounts is a snapshot of per-endpoint request totals.
type stubCounts struct {
	Geocode   int
	Routes    int
	Weather   int
	Air       int
	Nominatim int
	OSRM      int
}

// providerStub serves canned provider responses and counts requests per
// endpoint. Environmental lookups fan out concurrently, so all state is
// mutex-guarded.
type providerStub struct {
	mu         sync.Mutex
	counts     stubCounts
	unexpected []string
}

func newProviderStub() *providerStub {
	return &providerStub{}
}

// Counts returns a snapshot of the per-endpoint request totals. Tests
// compare snapshots taken before and after an operation, so totals carried
// over from earlier tests in the shared environment do not matter.
func (s *providerStub) Counts() stubCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// Unexpected returns the URLs of requests that matched no stubbed host.
func (s *providerStub) Unexpected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unexpected...)
}

func (s *providerStub) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.URL.Host {
	case "maps.test":
		s.counts.Geocode++
		return s.geocode(req), nil
	case "routes.test":
		s.counts.Routes++
		return jsonResponse(req, http.StatusOK, routesResponse), nil
	case "weather.test":
		s.counts.Weather++
		return jsonResponse(req, http.StatusOK, weatherResponse), nil
	case "air.test":
		s.counts.Air++
		return jsonResponse(req, http.StatusOK, airQualityResponse), nil
	case "nominatim.test":
		s.counts.Nominatim++
		// No Nominatim fixtures: the keyless fallback finds nothing, so a
		// failed Google geocode exhausts the whole chain.
		return jsonResponse(req, http.StatusOK, `[]`), nil
	case "osrm.test":
		s.counts.OSRM++
		return jsonResponse(req, http.StatusOK, `{"code":"NoRoute","routes":[]}`), nil
	default:
		s.unexpected = append(s.unexpected, req.URL.String())
		return jsonResponse(req, http.StatusNotFound, `{"error":{"code":404,"message":"no stub for host","status":"NOT_FOUND"}}`), nil
	}
}

func (s *providerStub) geocode(req *http.Request) *http.Response {
	address := req.URL.Query().Get("address")
	for key, fx := range geocodeFixtures {
		if strings.Contains(address, key) {
			body := fmt.Sprintf(`{
  "status": "OK",
  "results": [
    {
      "formatted_address": %q,
      "geometry": {"location": {"lat": %v, "lng": %v}}
    }
  ]
}`, fx.display, fx.lat, fx.lon)
			return jsonResponse(req, http.StatusOK, body)
		}
	}
	return jsonResponse(req, http.StatusOK, `{"status":"ZERO_RESULTS","results":[]}`)
}

func jsonResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// ---------------------------------------------------------------------------
// Metrics recorder
// ---------------------------------------------------------------------------

// metricsRecorder counts metric emissions so tests can assert on the
// pipeline's observability side effects. Counts accumulate across the shared
// environment; tests compare before/after snapshots.
type metricsRecorder struct {
	mu               sync.Mutex
	analyses         map[types.AnalysisAction]int
	statuses         map[types.SpoilageStatus]int
	failures         map[types.AnalysisAction]int
	modelUnavailable int
	dangerZones      map[string]int
	queueLag         map[string]int
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{
		analyses:    make(map[types.AnalysisAction]int),
		statuses:    make(map[types.SpoilageStatus]int),
		failures:    make(map[types.AnalysisAction]int),
		dangerZones: make(map[string]int),
		queueLag:    make(map[string]int),
	}
}

func (m *metricsRecorder) RecordAnalysis(_ context.Context, action types.AnalysisAction, status types.SpoilageStatus, _ string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[action]++
	m.statuses[status]++
}

func (m *metricsRecorder) RecordFailure(_ context.Context, action types.AnalysisAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[action]++
}

func (m *metricsRecorder) RecordModelUnavailable(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelUnavailable++
}

func (m *metricsRecorder) RecordDangerZones(_ context.Context, cropType string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dangerZones[cropType] += count
}

func (m *metricsRecorder) RecordQueueLag(_ context.Context, queue string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueLag[queue]++
}

func (m *metricsRecorder) AnalysisCount(action types.AnalysisAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyses[action]
}

func (m *metricsRecorder) FailureCount(action types.AnalysisAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[action]
}

func (m *metricsRecorder) QueueLagCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueLag[queue]
}

var _ analysis.AnalysisMetrics = (*metricsRecorder)(nil)

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

// TestEnv bundles the fully wired analysis pipeline shared by all tests in
// this package. It is initialized once in TestMain.
type TestEnv struct {
	Service  *analysis.Service
	Sessions session.Store
	Catalog  *crops.Catalog
	Metrics  *metricsRecorder
	Stub     *providerStub
	Logger   *slog.Logger
}

// NewTestEnv wires the production object graph with the stub transport
// substituted at the HTTP boundary. The wiring mirrors the analysis worker's
// cold start, minus the AWS clients.
func NewTestEnv() (*TestEnv, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stub := newProviderStub()

	providerCfg := config.ProviderConfig{
		GoogleAPIKey:        config.SecretString("e2e-stub-key"),
		GoogleGeocodeURL:    stubGeocodeURL,
		GoogleRoutesURL:     stubRoutesURL,
		GoogleWeatherURL:    stubWeatherURL,
		GoogleAirQualityURL: stubAirQualityURL,
		NominatimURL:        stubNominatimURL,
		OSRMURL:             stubOSRMURL,
		UserAgent:           "ColdTrace-E2E/1.0",
		Timeout:             5 * time.Second,
	}
	registry := external.NewRegistry(providerCfg, logger,
		external.WithHTTPClient(&http.Client{Transport: stub}))

	generator := telemetry.NewGenerator(registry, config.TelemetryConfig{
		MaxWaypoints: 12,
		FanoutLimit:  6,
	}, types.RealClock{}, logger)

	scoring := model.LoadOrNil(config.ModelConfig{EnableClassifier: true}, logger)
	if scoring == nil {
		return nil, fmt.Errorf("embedded model artifact failed to load")
	}
	inference := risk.NewInferenceContext(scoring, risk.DefaultPolicy(), 4, logger, types.RealClock{})

	catalog, err := crops.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load crop catalog: %w", err)
	}

	sessions, err := session.NewStore(config.SessionConfig{
		Backend: "memory",
		TTL:     30 * time.Minute,
	}, types.RealClock{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build session store: %w", err)
	}

	metrics := newMetricsRecorder()
	svc := analysis.NewService(
		generator,
		inference,
		knowledge.NewBase(knowledge.FromCatalog(catalog), nil, logger),
		narrative.NewRuleBasedGenerator(catalog, logger),
		sessions,
		metrics,
		types.RealClock{},
		logger,
	)

	if h := svc.Health(); !h.ModelAvailable {
		return nil, fmt.Errorf("analysis service reports model unavailable")
	}

	return &TestEnv{
		Service:  svc,
		Sessions: sessions,
		Catalog:  catalog,
		Metrics:  metrics,
		Stub:     stub,
		Logger:   logger,
	}, nil
}

// Close releases environment resources after the suite runs.
func (e *TestEnv) Close() {
	_, _ = e.Sessions.Cleanup(context.Background())
}

// ---------------------------------------------------------------------------
// Queue fakes
// ---------------------------------------------------------------------------

// fakeSQS captures published messages so tests can replay them as Lambda
// SQS events.
type fakeSQS struct {
	mu      sync.Mutex
	singles []*sqs.SendMessageInput
	batches []*sqs.SendMessageBatchInput
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, params)
	return &sqs.SendMessageOutput{MessageId: aws.String(uuid.NewString())}, nil
}

func (f *fakeSQS) SendMessageBatch(_ context.Context, params *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, params)
	out := &sqs.SendMessageBatchOutput{}
	for _, entry := range params.Entries {
		out.Successful = append(out.Successful, sqsTypes.SendMessageBatchResultEntry{
			Id:        entry.Id,
			MessageId: aws.String(uuid.NewString()),
		})
	}
	return out, nil
}

// capturedEvent converts every batched message into the SQS event shape the
// worker handler receives from Lambda, stamped as sent just now.
func (f *fakeSQS) capturedEvent(sourceARN string) events.SQSEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	sentAt := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var event events.SQSEvent
	for _, batch := range f.batches {
		for _, entry := range batch.Entries {
			event.Records = append(event.Records, events.SQSMessage{
				MessageId:      aws.ToString(entry.Id),
				Body:           aws.ToString(entry.MessageBody),
				Attributes:     map[string]string{"SentTimestamp": sentAt},
				EventSourceARN: sourceARN,
			})
		}
	}
	return event
}
