package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the async job ID
	FieldJobID = "job_id"

	// FieldProfileID is the advertising profile ID
	FieldProfileID = "profile_id"

	// FieldUploadID is the spreadsheet upload ID
	FieldUploadID = "upload_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the data source tag (api, upload)
	FieldSource = "source"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldPhase is the fetch state machine phase
	FieldPhase = "phase"

	// FieldSize is a payload size in bytes
	FieldSize = "size_bytes"
)
