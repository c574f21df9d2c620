// Package config defines the global configuration structure for the ColdTrace
// pipeline. Configuration is loaded once at process initialization (Lambda
// Cold Start or CLI startup) and is immutable thereafter. It follows 12-Factor
// App principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"coldtrace/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the ColdTrace pipeline.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"coldtrace-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Model         ModelConfig
	Risk          RiskConfig
	Telemetry     TelemetryConfig
	Providers     ProviderConfig
	Database      DatabaseConfig
	Session       SessionConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ModelConfig holds scoring model artifact configuration.
type ModelConfig struct {
	// ArtifactPath points to a JSON artifact (optionally zstd-compressed,
	// suffix .zst). Empty means the embedded default artifact is used.
	ArtifactPath string `envconfig:"MODEL_ARTIFACT_PATH"`

	// EnableClassifier controls whether the discrete classifier head
	// participates in predictions. Disabling it forces the regressor-only
	// path (no confidence output).
	EnableClassifier bool `envconfig:"MODEL_ENABLE_CLASSIFIER" default:"true"`
}

// RiskConfig exposes the reconciliation policy knobs. Defaults reproduce the
// documented ensemble behavior; deployments tune them per cargo profile.
type RiskConfig struct {
	WarningThreshold  float64 `envconfig:"RISK_WARNING_THRESHOLD" default:"0.3" validate:"gte=0,lte=1"`
	CriticalThreshold float64 `envconfig:"RISK_CRITICAL_THRESHOLD" default:"0.7" validate:"gte=0,lte=1"`

	SpoiledPullTarget float64 `envconfig:"RISK_SPOILED_PULL_TARGET" default:"0.4" validate:"gte=0,lte=1"`
	SafePullTarget    float64 `envconfig:"RISK_SAFE_PULL_TARGET" default:"0.5" validate:"gte=0,lte=1"`
	RegressorSafeCall float64 `envconfig:"RISK_REGRESSOR_SAFE_CALL" default:"0.3" validate:"gte=0,lte=1"`

	ForceCriticalOnSpoiled bool `envconfig:"RISK_FORCE_CRITICAL_ON_SPOILED" default:"true"`

	BaseShelfLifeDays float64 `envconfig:"RISK_BASE_SHELF_LIFE_DAYS" default:"10" validate:"gt=0"`

	// MaxConcurrentScores bounds the waypoint scoring fan-out.
	MaxConcurrentScores int `envconfig:"RISK_MAX_CONCURRENT_SCORES" default:"8" validate:"gte=1"`
}

// TelemetryConfig holds trip generation tuning parameters.
type TelemetryConfig struct {
	// MaxWaypoints caps route sampling density for the primary provider.
	MaxWaypoints int `envconfig:"TELEMETRY_MAX_WAYPOINTS" default:"12" validate:"gte=2,lte=50"`

	// FanoutLimit bounds concurrent environmental lookups per trip.
	FanoutLimit int `envconfig:"TELEMETRY_FANOUT_LIMIT" default:"6" validate:"gte=1"`
}

// ProviderConfig holds external data provider endpoints and credentials.
// An empty GoogleAPIKey disables the Google providers entirely; the fallback
// chain (Nominatim, OSRM, simulation) still produces complete trips.
type ProviderConfig struct {
	GoogleAPIKey SecretString `envconfig:"GOOGLE_API_KEY"`

	GoogleGeocodeURL    string `envconfig:"GOOGLE_GEOCODE_URL" default:"https://maps.googleapis.com/maps/api/geocode/json"`
	GoogleRoutesURL     string `envconfig:"GOOGLE_ROUTES_URL" default:"https://routes.googleapis.com/directions/v2:computeRoutes"`
	GoogleWeatherURL    string `envconfig:"GOOGLE_WEATHER_URL" default:"https://weather.googleapis.com/v1/currentConditions:lookup"`
	GoogleAirQualityURL string `envconfig:"GOOGLE_AIR_QUALITY_URL" default:"https://airquality.googleapis.com/v1/currentConditions:lookup"`

	NominatimURL string `envconfig:"NOMINATIM_URL" default:"https://nominatim.openstreetmap.org"`
	OSRMURL      string `envconfig:"OSRM_URL" default:"https://router.project-osrm.org"`

	UserAgent string        `envconfig:"PROVIDER_USER_AGENT" default:"ColdTrace/1.0"`
	Timeout   time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// The URL is optional: when unset, the embedded crop catalog is used and no
// database connection is opened.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// SessionConfig holds analysis session cache settings.
type SessionConfig struct {
	// Backend selects the session store implementation.
	Backend string `envconfig:"SESSION_BACKEND" default:"memory" validate:"oneof=memory redis"`

	RedisAddr     string       `envconfig:"SESSION_REDIS_ADDR"`
	RedisPassword SecretString `envconfig:"SESSION_REDIS_PASSWORD"`
	RedisDB       int          `envconfig:"SESSION_REDIS_DB" default:"0"`

	TTL time.Duration `envconfig:"SESSION_TTL" default:"30m" validate:"gt=0"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers. Empty values disable the batch pipeline; the
	// local CLI does not need them.
	AnalysisQueueURL string `envconfig:"SQS_ANALYSIS_QUEUE" validate:"omitempty,url"`
	DlqURL           string `envconfig:"SQS_DLQ" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ColdTrace"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
