package types

// AnalysisJob represents the SQS payload sent from the dispatcher to the
// analysis workers. This struct is the transport envelope carrying all
// information needed for routing and processing. JSON tags use snake_case to
// match the manifest format.
type AnalysisJob struct {
	// Core Identity
	JobID   string `json:"job_id"`
	BatchID string `json:"batch_id,omitempty"`

	// Routing & Logic
	Action AnalysisAction `json:"action"`

	// Exactly one of Trip/Conditions is set, matching Action.
	Trip       *TripRequest       `json:"trip,omitempty"`
	Conditions *ConditionsRequest `json:"conditions,omitempty"`

	// Retry State: carries retry count across the SQS publish cycle.
	// Incremented by workers on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID string `json:"trace_id"`
}
