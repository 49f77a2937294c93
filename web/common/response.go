package common

// SuccessResponse wraps every successful payload under "data".
type SuccessResponse[T any] struct {
	Data T `json:"data"`
}

func NewSuccessResponse[T any](data T) *SuccessResponse[T] {
	return &SuccessResponse[T]{Data: data}
}

type ErrorResponse struct {
	Code             string         `json:"code,omitempty"`
	Message          string         `json:"message"`
	LocalizedMessage string         `json:"localizedMessage,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		Message: message,
	}
}

// NewFailureResponse carries a machine readable code next to the localized message.
func NewFailureResponse(code string, message string, localized string, details map[string]any) *ErrorResponse {
	return &ErrorResponse{
		Code:             code,
		Message:          message,
		LocalizedMessage: localized,
		Details:          details,
	}
}
