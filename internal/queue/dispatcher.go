// Package queue publishes analysis jobs to SQS for the worker fleet.
//
// The Dispatcher is the single write path onto the analysis queue. It stamps
// job, batch, and trace IDs onto outgoing messages, attaches the dispatch
// reason as a message attribute, and chunks manifests into SendMessageBatch
// calls of ten entries, the SQS per-request maximum.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"coldtrace/internal/config"
	"coldtrace/internal/types"
)

// maxBatchEntries is the SQS SendMessageBatch request limit.
const maxBatchEntries = 10

// reasonAttribute names the message attribute carrying why a job was
// enqueued. DLQ triage reads it without parsing the body.
const reasonAttribute = "reason"

// SQSClient is the subset of the SQS SDK client used by the dispatcher.
// *sqs.Client satisfies it; tests supply a mock.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Dispatcher publishes AnalysisJobs to the analysis queue.
type Dispatcher struct {
	client   SQSClient
	queueURL string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher targeting the configured analysis queue.
func NewDispatcher(client SQSClient, awsCfg config.AWSConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		queueURL: awsCfg.AnalysisQueueURL,
		logger:   logger,
	}
}

// NewDLQDispatcher creates a Dispatcher targeting the configured dead letter
// queue. Workers use it to park jobs that exhausted their retry budget.
func NewDLQDispatcher(client SQSClient, awsCfg config.AWSConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		queueURL: awsCfg.DlqURL,
		logger:   logger,
	}
}

// Dispatch publishes a single job. Missing job and trace IDs are minted so
// every message that reaches a worker is traceable; a caller-set BatchID is
// preserved.
func (d *Dispatcher) Dispatch(ctx context.Context, job types.AnalysisJob, reason string) error {
	if d.queueURL == "" {
		return fmt.Errorf("queue: analysis queue URL is not configured")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("queue: refusing to dispatch invalid job: %w", err)
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal AnalysisJob: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: reasonAttributes(reason),
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send AnalysisJob to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "analysis job enqueued",
		"queue_url", d.queueURL,
		"job_id", job.JobID,
		"batch_id", job.BatchID,
		"trace_id", job.TraceID,
		"action", string(job.Action),
		"reason", reason,
	)
	return nil
}

// DispatchBatch publishes a manifest of jobs under one freshly minted batch
// ID, chunked ten entries per SendMessageBatch call, and returns that batch
// ID. Jobs share the batch trace ID unless they already carry their own.
// Every job is validated before the first send; a manifest with any invalid
// entry dispatches nothing.
func (d *Dispatcher) DispatchBatch(ctx context.Context, jobs []types.AnalysisJob, reason string) (string, error) {
	if d.queueURL == "" {
		return "", fmt.Errorf("queue: analysis queue URL is not configured")
	}
	if len(jobs) == 0 {
		return "", fmt.Errorf("queue: no jobs to dispatch")
	}

	batchID := "batch_" + uuid.NewString()
	traceID := uuid.NewString()

	stamped := make([]types.AnalysisJob, len(jobs))
	copy(stamped, jobs)
	for i := range stamped {
		if err := stamped[i].Validate(); err != nil {
			return "", fmt.Errorf("queue: refusing to dispatch invalid job %d: %w", i, err)
		}
		stamped[i].BatchID = batchID
		if stamped[i].JobID == "" {
			stamped[i].JobID = uuid.NewString()
		}
		if stamped[i].TraceID == "" {
			stamped[i].TraceID = traceID
		}
	}

	for start := 0; start < len(stamped); start += maxBatchEntries {
		// Check context before each chunk so a Lambda timeout aborts cleanly.
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("queue: context cancelled during batch dispatch: %w", ctx.Err())
		default:
		}

		end := start + maxBatchEntries
		if end > len(stamped) {
			end = len(stamped)
		}

		chunk := stamped[start:end]
		entries := make([]sqsTypes.SendMessageBatchRequestEntry, len(chunk))
		for j, job := range chunk {
			body, err := json.Marshal(job)
			if err != nil {
				return "", fmt.Errorf("queue: failed to marshal AnalysisJob: %w", err)
			}
			entries[j] = sqsTypes.SendMessageBatchRequestEntry{
				Id:                aws.String(fmt.Sprintf("job-%d", start+j)),
				MessageBody:       aws.String(string(body)),
				MessageAttributes: reasonAttributes(reason),
			}
		}

		out, err := d.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(d.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return "", fmt.Errorf("queue: failed to send batch %s to %s: %w", batchID, d.queueURL, err)
		}
		if len(out.Failed) > 0 {
			first := out.Failed[0]
			return "", fmt.Errorf("queue: batch %s had %d failed entries, first: code=%s, message=%s",
				batchID, len(out.Failed), aws.ToString(first.Code), aws.ToString(first.Message))
		}
	}

	d.logger.InfoContext(ctx, "analysis batch enqueued",
		"queue_url", d.queueURL,
		"batch_id", batchID,
		"trace_id", traceID,
		"jobs", len(stamped),
		"reason", reason,
	)
	return batchID, nil
}

// Redispatch re-publishes a job with a delivery delay, used by workers
// retrying transient failures. RetryCount is incremented before
// serialization so the next consumer sees an accurate attempt number.
// Delay is clamped to the SQS maximum of 900 seconds. No IDs are minted
// and no validation runs: a redispatched job already passed through
// Dispatch once.
func (d *Dispatcher) Redispatch(ctx context.Context, job types.AnalysisJob, reason string, delay time.Duration) error {
	if d.queueURL == "" {
		return fmt.Errorf("queue: analysis queue URL is not configured")
	}
	job.RetryCount++

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal AnalysisJob: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > 900 {
		delaySec = 900
	}
	if delaySec < 0 {
		delaySec = 0
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.queueURL),
		MessageBody:       aws.String(string(body)),
		DelaySeconds:      delaySec,
		MessageAttributes: reasonAttributes(reason),
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send AnalysisJob to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "analysis job redispatched",
		"queue_url", d.queueURL,
		"job_id", job.JobID,
		"retry_count", job.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", job.TraceID,
		"reason", reason,
	)
	return nil
}

func reasonAttributes(reason string) map[string]sqsTypes.MessageAttributeValue {
	return map[string]sqsTypes.MessageAttributeValue{
		reasonAttribute: {
			DataType:    aws.String("String"),
			StringValue: aws.String(reason),
		},
	}
}
