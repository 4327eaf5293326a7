package types

// Error codes used by the HTTP API.
const (
	CodeUnauthorized  = "AUTH_401"
	CodeForbidden     = "AUTH_403"
	CodeBadRequest    = "GRIPPER_400"
	CodeNotFound      = "GRIPPER_404"
	CodeNotReady      = "GRIPPER_409"
	CodeInternal      = "GRIPPER_500"
	CodeDeviceFailure = "GRIPPER_502"
	CodeUnavailable   = "GRIPPER_503"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse is the envelope of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse wraps code and message; details may be any JSON value.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}}
}

// FromError is NewErrorResponse with err's text as details.
func FromError(code, message string, err error) ErrorResponse {
	var details any
	if err != nil {
		details = err.Error()
	}
	return NewErrorResponse(code, message, details)
}
