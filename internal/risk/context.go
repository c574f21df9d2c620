package risk

import (
	"log/slog"

	"coldtrace/internal/types"
)

// InferenceContext bundles the inference collaborators built once at process
// start. Handlers and workers receive it explicitly, share it read-only, and
// never mutate it after construction.
type InferenceContext struct {
	Model      Model
	Reconciler *Reconciler
	Evaluator  *Evaluator
	Policy     Policy
	Logger     *slog.Logger
	Clock      types.Clock
}

// NewInferenceContext wires a model into a reconciler and evaluator under a
// single policy. model may be nil when artifact loading failed; the context
// then serves degraded model-unavailable predictions and Health reports the
// condition.
func NewInferenceContext(model Model, policy Policy, concurrency int, logger *slog.Logger, clock types.Clock) *InferenceContext {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	reconciler := NewReconciler(model, policy, logger)
	return &InferenceContext{
		Model:      model,
		Reconciler: reconciler,
		Evaluator:  NewEvaluator(reconciler, concurrency, logger),
		Policy:     policy,
		Logger:     logger,
		Clock:      clock,
	}
}

// Health describes engine readiness.
type Health struct {
	ModelAvailable bool   `json:"model_available"`
	Detail         string `json:"detail,omitempty"`
}

// Health reports whether a scoring model is loaded. A degraded context still
// serves; every prediction it produces carries StatusUnknown with the
// model-unavailable marker.
func (ic *InferenceContext) Health() Health {
	if ic.Model == nil {
		return Health{Detail: "model unavailable"}
	}
	return Health{ModelAvailable: true}
}
