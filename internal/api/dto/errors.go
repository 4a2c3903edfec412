package dto

// APIError is the structured error payload every failing endpoint returns.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
	ErrCodeWrongStep     = "wrong_step"
)

// NewAPIError creates an APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{Code: code, Message: message}
}
