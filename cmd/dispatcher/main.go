// Package main implements the dispatcher CLI tool for enqueueing analysis
// jobs onto the SQS analysis queue from a trip manifest.
//
// This tool is intended for fleet-scale batch runs, backfills, and manual
// re-drives. A manifest is either a JSON array of types.AnalysisJob (sent
// as one batch under a shared batch ID) or a single job object (sent as an
// individual message). The dispatch result is printed as JSON on stdout;
// logs go to stderr.
//
// Usage:
//
//	go run ./cmd/dispatcher --manifest fleet.json --reason nightly_fleet
//	go run ./cmd/analyzer --dry-run --origin Nashik --destination Mumbai --crop Mango | go run ./cmd/dispatcher --manifest -
//	go run ./cmd/dispatcher --dry-run --manifest fleet.json
//
// The tool reads SQS_ANALYSIS_QUEUE from environment variables (or a .env
// file via the config loader). In --dry-run mode it validates every
// manifest entry and prints a summary without sending anything.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"coldtrace/internal/config"
	"coldtrace/internal/queue"
	"coldtrace/internal/types"
)

// dispatchResult is the JSON document printed on stdout after a successful
// dispatch, so scripts can capture the batch ID for later correlation.
type dispatchResult struct {
	BatchID      string `json:"batch_id,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	JobsEnqueued int    `json:"jobs_enqueued"`
	QueueURL     string `json:"queue_url"`
	Reason       string `json:"reason"`
}

func main() {
	// Parse command-line flags.
	manifestFlag := flag.String("manifest", "", "Manifest file with an AnalysisJob array or single job (- for stdin)")
	reasonFlag := flag.String("reason", "manual_dispatch", "Dispatch reason attached to every message")
	dryRunFlag := flag.Bool("dry-run", false, "Validate the manifest and print a summary without sending")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dispatcher [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Enqueue analysis jobs from a trip manifest onto the SQS analysis queue.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nA manifest is a JSON array of analysis jobs, or a single job object.\n")
	}

	flag.Parse()

	// Validate --manifest is provided.
	if *manifestFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --manifest is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	jobs, single, err := readManifest(*manifestFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// If dry-run, validate every entry and print a summary without sending.
	if *dryRunFlag {
		if err := validateManifest(jobs); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Manifest OK: %d job(s), reason %q, nothing sent.\n", len(jobs), *reasonFlag)
		return
	}

	// Initialize structured logger on stderr; stdout carries the result.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load ColdTrace configuration for the queue URL.
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AWS.AnalysisQueueURL == "" {
		logger.Error("SQS_ANALYSIS_QUEUE is not configured")
		os.Exit(1)
	}

	// Set up cancellation context with signal handling.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load AWS SDK configuration and initialize the SQS client.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	dispatcher := queue.NewDispatcher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)

	result := dispatchResult{
		JobsEnqueued: len(jobs),
		QueueURL:     cfg.AWS.AnalysisQueueURL,
		Reason:       *reasonFlag,
	}

	if single {
		// A single-object manifest goes out as an individual message. The
		// job ID is minted here so it can be reported; Dispatch preserves
		// caller-set identity.
		job := jobs[0]
		if job.JobID == "" {
			job.JobID = uuid.NewString()
		}
		if err := dispatcher.Dispatch(ctx, job, *reasonFlag); err != nil {
			logger.Error("dispatch failed", "error", err)
			os.Exit(1)
		}
		result.JobID = job.JobID
	} else {
		batchID, err := dispatcher.DispatchBatch(ctx, jobs, *reasonFlag)
		if err != nil {
			logger.Error("batch dispatch failed", "jobs", len(jobs), "error", err)
			os.Exit(1)
		}
		result.BatchID = batchID
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("failed to marshal dispatch result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// readManifest loads and parses the manifest. A leading '[' selects the
// batch form; anything else is parsed as a single job object. The single
// return reports which form was read.
func readManifest(path string) ([]types.AnalysisJob, bool, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading manifest: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("manifest is empty")
	}

	if trimmed[0] == '[' {
		var jobs []types.AnalysisJob
		if err := json.Unmarshal(trimmed, &jobs); err != nil {
			return nil, false, fmt.Errorf("parsing manifest array: %w", err)
		}
		if len(jobs) == 0 {
			return nil, false, fmt.Errorf("manifest contains no jobs")
		}
		return jobs, false, nil
	}

	var job types.AnalysisJob
	if err := json.Unmarshal(trimmed, &job); err != nil {
		return nil, false, fmt.Errorf("parsing manifest job: %w", err)
	}
	return []types.AnalysisJob{job}, true, nil
}

// validateManifest checks every entry, reporting the first failure by
// index. The live path revalidates inside the dispatcher; this exists so
// --dry-run catches bad manifests without touching AWS.
func validateManifest(jobs []types.AnalysisJob) error {
	for i := range jobs {
		if err := jobs[i].Validate(); err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
	}
	return nil
}
