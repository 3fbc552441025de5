package response

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is returned by operations with no resource to show
type MessageResponse struct {
	Message string `json:"message"`
}

// Error returns the standard error envelope
func Error(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// Message returns the standard acknowledgement envelope
func Message(msg string) MessageResponse {
	return MessageResponse{Message: msg}
}
