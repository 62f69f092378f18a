package types

// Envelope wraps every successful payload as {"data": ...}. The client
// decodes with Envelope[json.RawMessage] and unmarshals Data separately.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// Problem is the public error body. RequestID echoes the correlation id so
// a storefront failure can be matched to the backend log line.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ProblemEnvelope struct {
	Error Problem `json:"error"`
}
