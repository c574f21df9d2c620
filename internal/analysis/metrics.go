package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"coldtrace/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// AnalysisMetrics records pipeline outcomes. Implementations must be
// fire-and-forget: metric emission never fails an analysis.
type AnalysisMetrics interface {
	// RecordAnalysis emits a completion count and latency for one analysis.
	RecordAnalysis(ctx context.Context, action types.AnalysisAction, status types.SpoilageStatus, cropType string, latency time.Duration)
	// RecordFailure emits a failed-analysis count.
	RecordFailure(ctx context.Context, action types.AnalysisAction)
	// RecordModelUnavailable counts predictions served without a model.
	RecordModelUnavailable(ctx context.Context)
	// RecordDangerZones reports how many waypoints of a route crossed the
	// danger threshold.
	RecordDangerZones(ctx context.Context, cropType string, count int)
	// RecordQueueLag reports the time between a job's SQS enqueue and the
	// start of worker processing.
	RecordQueueLag(ctx context.Context, queue string, lag time.Duration)
}

// NoopMetrics discards every metric. It is the default when metrics are
// disabled in config.
type NoopMetrics struct{}

func (NoopMetrics) RecordAnalysis(context.Context, types.AnalysisAction, types.SpoilageStatus, string, time.Duration) {
}
func (NoopMetrics) RecordFailure(context.Context, types.AnalysisAction)   {}
func (NoopMetrics) RecordModelUnavailable(context.Context)                {}
func (NoopMetrics) RecordDangerZones(context.Context, string, int)        {}
func (NoopMetrics) RecordQueueLag(context.Context, string, time.Duration) {}

// CloudWatchMetrics publishes analysis metrics to CloudWatch.
//
// Metrics emitted:
//   - AnalysisCompleted: Dims {Action, Status, CropType} -- per finished analysis
//   - AnalysisLatency:   Dims {Action} -- wall time in milliseconds
//   - AnalysisFailed:    Dims {Action} -- per terminal failure
//   - ModelUnavailable:  no dims -- degraded predictions served
//   - DangerZones:       Dims {CropType} -- waypoints over the danger threshold
//   - QueueLag:          Dims {Queue} -- enqueue-to-processing delay in milliseconds
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordAnalysis(ctx context.Context, action types.AnalysisAction, status types.SpoilageStatus, cropType string, latency time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAnalysisCompleted),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimAction), Value: aws.String(string(action))},
			{Name: aws.String(types.DimStatus), Value: aws.String(string(status))},
			{Name: aws.String(types.DimCropType), Value: aws.String(cropType)},
		},
	}, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAnalysisLatency),
		Value:      aws.Float64(float64(latency.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimAction), Value: aws.String(string(action))},
		},
	})
}

func (m *CloudWatchMetrics) RecordFailure(ctx context.Context, action types.AnalysisAction) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAnalysisFailed),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimAction), Value: aws.String(string(action))},
		},
	})
}

func (m *CloudWatchMetrics) RecordModelUnavailable(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricModelUnavailable),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (m *CloudWatchMetrics) RecordDangerZones(ctx context.Context, cropType string, count int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDangerZones),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimCropType), Value: aws.String(cropType)},
		},
	})
}

func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, queue string, lag time.Duration) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	}
	if queue != "" {
		datum.Dimensions = []cwtypes.Dimension{
			{Name: aws.String(types.DimQueue), Value: aws.String(queue)},
		}
	}
	m.put(ctx, datum)
}

func (m *CloudWatchMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish analysis metrics",
			"error", err,
			"namespace", m.namespace,
			"datums", len(data),
		)
	}
}

var (
	_ AnalysisMetrics = (*CloudWatchMetrics)(nil)
	_ AnalysisMetrics = NoopMetrics{}
)
