package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldOwnerID       = "owner_id"
	FieldDescription   = "description"
	FieldCategory      = "category"
	FieldConfidence    = "confidence"
	FieldCorpusVersion = "corpus_version"
	FieldModel         = "model"
	FieldTransactions  = "transactions"
	FieldSeriesDays    = "series_days"
	FieldHorizonTotal  = "horizon_total"
	FieldSheetsRef     = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentClassifier = "classifier"
	ComponentForecast   = "forecast"
	ComponentTextNorm   = "textnorm"
	ComponentWorker     = "worker"
	ComponentCache      = "cache"
	ComponentSecurity   = "security"
	ComponentTrace      = "trace"
	ComponentBackend    = "backend"
)

// Operations defines standard operation names
const (
	OpRead     = "read"
	OpAppend   = "append"
	OpTrain    = "train"
	OpPredict  = "predict"
	OpForecast = "forecast"
	OpRefresh  = "refresh"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
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

// WithPrediction adds classifier prediction fields
func (f LogFields) WithPrediction(desc, category string, confidence float64, version int64) LogFields {
	f[FieldDescription] = desc
	f[FieldCategory] = category
	f[FieldConfidence] = confidence
	f[FieldCorpusVersion] = version
	return f
}

// WithForecast adds forecast outcome fields
func (f LogFields) WithForecast(ownerID, model string, transactions, seriesDays int, horizonTotal float64) LogFields {
	f[FieldOwnerID] = ownerID
	f[FieldModel] = model
	f[FieldTransactions] = transactions
	f[FieldSeriesDays] = seriesDays
	f[FieldHorizonTotal] = horizonTotal
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
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
