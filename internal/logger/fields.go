package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger for the whole call chain.
const (
	// FieldRunID identifies one generate or commit invocation (UUID)
	FieldRunID = "run_id"

	// FieldRequestID is the HTTP request ID of the review API (UUID)
	FieldRequestID = "request_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldPhase is the pipeline phase: generate or commit
	FieldPhase = "phase"

	// FieldItemID is the catalog id of the image being handled
	FieldItemID = "item_id"

	// FieldKind is the annotation kind being generated
	FieldKind = "kind"
)

// Metric fields, attached per entry for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
