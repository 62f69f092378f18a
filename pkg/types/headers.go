package types

// Headers shared by the backend router and the storefront API client.
const (
	HeaderRequestID      = "X-Request-Id"
	HeaderSessionID      = "X-Storefront-Session"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIfMatch        = "If-Match"
)
