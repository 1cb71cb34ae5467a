package telemetry

// Span names used by the evaluation service.
const (
	SpanEvaluate        = "evaluation.run"
	SpanEvaluateSectors = "evaluation.sectors"
	SpanPersist         = "evaluation.persist"
)
