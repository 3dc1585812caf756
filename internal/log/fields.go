package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldEvent        = "event"
	FieldEventID      = "event_id"
	FieldSubscription = "subscription_id"
	FieldRecordID     = "record_id"
	FieldPartyID      = "party_id"
	FieldAmountCents  = "amount_cents"
	FieldPanel        = "panel"
	FieldSkipped      = "skipped"
	FieldBackend      = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentBus       = "bus"
	ComponentAggregate = "aggregate"
	ComponentDashboard = "dashboard"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
	ComponentScheduler = "scheduler"
	ComponentExport    = "export"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpList     = "list"
	OpMarkPaid = "mark_paid"
	OpPublish  = "publish"
	OpDispatch = "dispatch"
	OpRefresh  = "refresh"
	OpFetch    = "fetch"
	OpSync     = "sync"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEvent adds the domain event name and id
func (f LogFields) WithEvent(name, id string) LogFields {
	f[FieldEvent] = name
	if id != "" {
		f[FieldEventID] = id
	}
	return f
}

// WithRecord adds record-related fields
func (f LogFields) WithRecord(id, partyID string, amountCents int64) LogFields {
	f[FieldRecordID] = id
	if partyID != "" {
		f[FieldPartyID] = partyID
	}
	f[FieldAmountCents] = amountCents
	return f
}

// WithHTTP adds HTTP request/response fields
func (f LogFields) WithHTTP(method, path string, statusCode int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
