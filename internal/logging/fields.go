package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldVisitID is the standardized structured logging key for visit identifiers.
	FieldVisitID = "visit_id"
	// FieldCaptureID is the standardized structured logging key for capture identifiers.
	FieldCaptureID = "capture_id"
	// FieldSessionID is the standardized structured logging key for detector session identifiers.
	FieldSessionID = "session_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags records with a machine-searchable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing next step for failures.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
