// Package main is the entrypoint for the ColdTrace Analysis Worker Lambda.
//
// The worker consumes AnalysisJobs from the analysis SQS queue, runs the
// full spoilage pipeline (route, telemetry, ensemble prediction, waypoint
// risks, narrative), and caches results in the session store. Transient
// failures are re-published with exponential backoff; jobs that exhaust
// their retry budget are forwarded to the dead letter queue.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load ColdTrace configuration (env -> .env -> SSM).
//  3. Load AWS SDK configuration.
//  4. Initialize SQS and CloudWatch clients.
//  5. Build the external provider registry and telemetry generator.
//  6. Load the scoring model and build the inference context.
//  7. Build the knowledge base and narrative generator from the crop
//     catalog, mirroring the catalog to PostgreSQL when configured.
//  8. Initialize the session store and analysis metrics.
//  9. Wire the retry and dead letter dispatchers into the handler.
//  10. Register handler and call lambda.Start.
//
// With APP_ENV=local the Lambda runtime is skipped and a single SQS event
// is read from stdin instead, which enables integration testing without
// the AWS Lambda RIE.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"coldtrace/internal/analysis"
	"coldtrace/internal/config"
	"coldtrace/internal/crops"
	"coldtrace/internal/external"
	"coldtrace/internal/knowledge"
	"coldtrace/internal/model"
	"coldtrace/internal/narrative"
	"coldtrace/internal/queue"
	"coldtrace/internal/risk"
	"coldtrace/internal/session"
	"coldtrace/internal/telemetry"
	"coldtrace/internal/types"
	"coldtrace/internal/worker"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// The types.Logger interface requires Info, Error, Warn, and With methods.
// slog.Logger satisfies the first three but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// parseLogLevel maps a LOG_LEVEL string onto a slog.Level, defaulting to
// Info for unset or unrecognized values.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func main() {
	// Initialize structured logger at startup (Cold Start).
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("LOG_LEVEL")),
	}))

	logger.Info("Analysis Worker Lambda initializing (cold start)")

	ctx := context.Background()

	// Load ColdTrace configuration. The SSM provider is only consulted for
	// _SSM_PARAM pointer variables in non-local environments.
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Load AWS SDK configuration.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	// Initialize AWS clients.
	sqsClient := sqs.NewFromConfig(awsCfg)
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	// Build the analysis pipeline.
	clock := types.RealClock{}
	registry := external.NewRegistry(cfg.Providers, logger)
	generator := telemetry.NewGenerator(registry, cfg.Telemetry, clock, logger)

	scoring := model.LoadOrNil(cfg.Model, logger)
	inference := risk.NewInferenceContext(scoring, risk.PolicyFromConfig(cfg.Risk),
		cfg.Risk.MaxConcurrentScores, logger, clock)

	catalog, err := crops.Default()
	if err != nil {
		logger.Error("Failed to load embedded crop catalog", "error", err)
		os.Exit(1)
	}

	// Mirror the catalog to PostgreSQL when a database is configured. The
	// mirror exists for operational visibility; the pipeline reads the
	// embedded catalog either way, so failures here degrade rather than
	// abort the cold start.
	if cfg.Database.URL.Unmask() != "" {
		if pool, poolErr := crops.NewPool(ctx, cfg.Database); poolErr != nil {
			logger.Warn("Database unreachable, continuing with embedded catalog", "error", poolErr)
		} else {
			store := crops.NewStore(pool, logger)
			if syncErr := store.EnsureSchema(ctx); syncErr != nil {
				logger.Warn("Failed to ensure crop_rules schema", "error", syncErr)
			} else if _, syncErr = store.Sync(ctx, catalog.All()); syncErr != nil {
				logger.Warn("Failed to sync crop catalog", "error", syncErr)
			}
			// The mirror is a one-shot cold start operation; nothing else
			// holds database connections.
			pool.Close()
		}
	}

	kb := knowledge.NewBase(knowledge.FromCatalog(catalog), nil, logger)
	insight := narrative.NewRuleBasedGenerator(catalog, logger)

	sessions, err := session.NewStore(cfg.Session, clock, logger)
	if err != nil {
		logger.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}

	var metrics analysis.AnalysisMetrics = analysis.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = analysis.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	svc := analysis.NewService(generator, inference, kb, insight, sessions, metrics, clock, logger)

	// Wrap slog.Logger to satisfy types.Logger interface.
	typedLogger := &slogAdapter{logger: logger}

	// Wire the retry and dead letter publishers. Leaving an unconfigured
	// publisher nil makes the handler fall back to SQS redelivery (retries)
	// or dropping exhausted jobs (dead letters).
	var retries, deadLetters worker.JobPublisher
	if cfg.AWS.AnalysisQueueURL != "" {
		retries = queue.NewDispatcher(sqsClient, cfg.AWS, logger)
	}
	if cfg.AWS.DlqURL != "" {
		deadLetters = queue.NewDLQDispatcher(sqsClient, cfg.AWS, logger)
	}

	handler := worker.NewHandler(svc, retries, deadLetters, metrics, worker.DefaultRetryPolicy, typedLogger)

	health := svc.Health()
	logger.Info("Analysis Worker Lambda initialized",
		"environment", cfg.Environment,
		"analysis_queue", cfg.AWS.AnalysisQueueURL,
		"dlq", cfg.AWS.DlqURL,
		"model_available", health.ModelAvailable,
		"session_backend", cfg.Session.Backend,
		"metric_namespace", cfg.Observability.MetricNamespace,
		"version", cfg.Build.Version,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local integration testing without the
	// AWS Lambda RIE.
	// Usage: cat event.json | go run ./cmd/analysis-worker
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("No input received on stdin")
			os.Exit(1)
		}
		var event events.SQSEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Error("Failed to parse SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, event)
		if err != nil {
			logger.Error("Handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			logger.Error("Handler reported record failures",
				"failed", len(response.BatchItemFailures))
			os.Exit(1)
		}
		logger.Info("Handler execution completed successfully")
		return
	}

	lambda.Start(handler.Handle)
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
