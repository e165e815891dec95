package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeUnknownContentType = "unknown_content_type"
	ErrCodeInvalidCount       = "invalid_count"

	// Resource errors
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
