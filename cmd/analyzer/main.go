// Package main implements the analyzer CLI tool for running a single
// spoilage analysis directly, bypassing the SQS queue and the AWS Lambda
// shim.
//
// This tool is intended for local development, catalog inspection, and
// operational debugging. It constructs a types.AnalysisJob from flags or
// reads one from a file, wires the full analysis pipeline in-process, and
// prints the resulting TripAnalysis as JSON on stdout. Logs go to stderr
// so the output can be piped.
//
// Usage:
//
//	go run ./cmd/analyzer --origin "Nashik, Maharashtra" --destination "Mumbai, Maharashtra" --crop Mango
//	go run ./cmd/analyzer --action=analyze_conditions --crop Tomato --temp 34.5 --humidity 80 --hours 6
//	go run ./cmd/analyzer --input job.json
//	echo '{"action":"analyze_trip","trip":{...}}' | go run ./cmd/analyzer --input -
//	go run ./cmd/analyzer --dry-run --origin Nashik --destination Mumbai --crop Mango
//	go run ./cmd/analyzer --list-crops
//
// The tool reads configuration from environment variables (or a .env file
// via the config loader). Without a GOOGLE_API_KEY the keyless providers
// carry geocoding and routing, and environmental readings are simulated,
// so the pipeline runs fully offline. In --dry-run mode the constructed
// job JSON is printed without executing; the output is a valid manifest
// entry for cmd/dispatcher.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

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

func main() {
	// Parse command-line flags.
	actionFlag := flag.String("action", string(types.ActionAnalyzeTrip), "Analysis action (analyze_trip or analyze_conditions)")
	originFlag := flag.String("origin", "", "Trip origin (place name)")
	destinationFlag := flag.String("destination", "", "Trip destination (place name)")
	cropFlag := flag.String("crop", "", "Crop type (see --list-crops)")
	languageFlag := flag.String("language", "", "Narrative language code (e.g., hi, ta)")
	sessionFlag := flag.String("session", "", "Session ID to store the result under (uuid4)")
	tempFlag := flag.Float64("temp", 0, "Measured temperature in Celsius (analyze_conditions)")
	humidityFlag := flag.Float64("humidity", 0, "Measured relative humidity percent (analyze_conditions)")
	hoursFlag := flag.Float64("hours", 0, "Transit duration in hours (analyze_conditions)")
	inputFlag := flag.String("input", "", "Read an AnalysisJob JSON from this file instead of flags (- for stdin)")
	dryRunFlag := flag.Bool("dry-run", false, "Print the constructed job JSON without executing")
	listCropsFlag := flag.Bool("list-crops", false, "List catalog crop types and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: analyzer [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run a single spoilage analysis locally, bypassing SQS and Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list-crops to see the crop types the catalog covers.\n")
	}

	flag.Parse()

	// Handle --list-crops: print catalog entries and exit.
	if *listCropsFlag {
		printCatalogCrops()
		return
	}

	// Construct the analysis job from --input or from flags.
	job, err := buildJob(*inputFlag, *actionFlag, *originFlag, *destinationFlag,
		*cropFlag, *languageFlag, *sessionFlag, *tempFlag, *humidityFlag, *hoursFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := job.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid job: %v\n", err)
		os.Exit(1)
	}

	// If dry-run, print the job JSON and exit. The output is a valid
	// manifest entry for cmd/dispatcher.
	if *dryRunFlag {
		printJob(job)
		return
	}

	// Initialize structured logger on stderr; stdout carries the result.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Set up cancellation context with signal handling.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := buildService(logger)
	if err != nil {
		logger.Error("pipeline initialization failed", "error", err)
		os.Exit(1)
	}

	result, err := runJob(ctx, svc, job)
	if err != nil {
		logger.Error("analysis failed",
			"action", string(job.Action),
			"error", err,
		)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("failed to marshal analysis result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(data))

	logger.Info("analysis complete",
		"action", string(job.Action),
		"request_id", result.RequestID,
		"status", string(result.Prediction.Status),
		"warnings", len(result.Warnings),
	)
}

// buildJob assembles the AnalysisJob either from an input file (JSON, "-"
// for stdin) or from the individual flags. Flag-built trip jobs carry the
// optional language and session ID; conditions jobs carry the measured
// readings.
func buildJob(input, action, origin, destination, crop, language, sessionID string,
	temp, humidity, hours float64) (types.AnalysisJob, error) {
	if input != "" {
		var data []byte
		var err error
		if input == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(input)
		}
		if err != nil {
			return types.AnalysisJob{}, fmt.Errorf("reading job input: %w", err)
		}
		var job types.AnalysisJob
		if err := json.Unmarshal(data, &job); err != nil {
			return types.AnalysisJob{}, fmt.Errorf("parsing job JSON: %w", err)
		}
		return job, nil
	}

	switch types.AnalysisAction(action) {
	case types.ActionAnalyzeTrip:
		return types.AnalysisJob{
			Action: types.ActionAnalyzeTrip,
			Trip: &types.TripRequest{
				Origin:      origin,
				Destination: destination,
				CropType:    crop,
				Language:    language,
				SessionID:   sessionID,
			},
		}, nil
	case types.ActionAnalyzeConditions:
		return types.AnalysisJob{
			Action: types.ActionAnalyzeConditions,
			Conditions: &types.ConditionsRequest{
				TemperatureC: temp,
				Humidity:     humidity,
				TransitHours: hours,
				CropType:     crop,
			},
		}, nil
	default:
		return types.AnalysisJob{}, fmt.Errorf("unknown action %q", action)
	}
}

// buildService wires the full analysis pipeline for in-process execution.
//
// This mirrors the cold-start wiring in cmd/analysis-worker/main.go with
// the queue-facing pieces removed: metrics stay no-op so CLI runs never
// publish to CloudWatch, and the session store comes from config (memory
// unless SESSION_BACKEND=redis, which makes --session useful across runs).
func buildService(logger *slog.Logger) (*analysis.Service, error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	clock := types.RealClock{}
	registry := external.NewRegistry(cfg.Providers, logger)
	generator := telemetry.NewGenerator(registry, cfg.Telemetry, clock, logger)

	scoring := model.LoadOrNil(cfg.Model, logger)
	inference := risk.NewInferenceContext(scoring, risk.PolicyFromConfig(cfg.Risk),
		cfg.Risk.MaxConcurrentScores, logger, clock)

	catalog, err := crops.Default()
	if err != nil {
		return nil, fmt.Errorf("loading embedded crop catalog: %w", err)
	}
	kb := knowledge.NewBase(knowledge.FromCatalog(catalog), nil, logger)
	insight := narrative.NewRuleBasedGenerator(catalog, logger)

	sessions, err := session.NewStore(cfg.Session, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing session store: %w", err)
	}

	return analysis.NewService(generator, inference, kb, insight, sessions,
		analysis.NoopMetrics{}, clock, logger), nil
}

// runJob routes the job to the matching service operation. The action was
// validated before this point, so the default arm is unreachable.
func runJob(ctx context.Context, svc *analysis.Service, job types.AnalysisJob) (*types.TripAnalysis, error) {
	switch job.Action {
	case types.ActionAnalyzeTrip:
		return svc.AnalyzeTrip(ctx, *job.Trip)
	case types.ActionAnalyzeConditions:
		return svc.AnalyzeConditions(ctx, *job.Conditions)
	default:
		return nil, fmt.Errorf("unknown action %q", job.Action)
	}
}

// printCatalogCrops prints the embedded catalog's crop types and storage
// bands to stderr, sorted alphabetically.
func printCatalogCrops() {
	catalog, err := crops.Default()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load embedded crop catalog: %v\n", err)
		os.Exit(1)
	}

	rules := catalog.All()
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Name < rules[j].Name
	})

	// Find the longest crop name for alignment.
	maxLen := 0
	for _, rule := range rules {
		if len(rule.Name) > maxLen {
			maxLen = len(rule.Name)
		}
	}

	fmt.Fprintf(os.Stderr, "Catalog crop types:\n\n")
	for _, rule := range rules {
		fmt.Fprintf(os.Stderr, "  %-*s  %s, %.0f-%.0f C, %.0f-%.0f%% RH\n",
			maxLen, rule.Name, rule.Category,
			rule.TempMinC, rule.TempMaxC,
			rule.HumidityMin, rule.HumidityMax)
	}
	fmt.Fprintln(os.Stderr)
}

// printJob marshals the job to pretty-printed JSON and writes it to stdout
// for inspection or piping into cmd/dispatcher.
func printJob(job types.AnalysisJob) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to marshal job: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))

	// Also log a short summary for context on stderr.
	switch job.Action {
	case types.ActionAnalyzeTrip:
		fmt.Fprintf(os.Stderr, "\nAction: %s\nRoute: %s -> %s\nCrop: %s\n",
			job.Action, job.Trip.Origin, job.Trip.Destination, job.Trip.CropType)
	case types.ActionAnalyzeConditions:
		fmt.Fprintf(os.Stderr, "\nAction: %s\nConditions: %.1f C, %.0f%% RH, %.1f h\nCrop: %s\n",
			job.Action, job.Conditions.TemperatureC, job.Conditions.Humidity,
			job.Conditions.TransitHours, job.Conditions.CropType)
	}
}
