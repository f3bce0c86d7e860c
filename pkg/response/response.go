// Package response defines the error bodies returned by the HTTP API.
// Every failure crosses the boundary as {error, message}; internal detail
// stays in the logs.
package response

// ErrorResponse is the uniform error body: a short error label plus a
// human-readable message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	URLRequiredResponse = ErrorResponse{
		Error:   "URL is required",
		Message: "Please provide a valid URL to shorten",
	}

	InvalidURLResponse = ErrorResponse{
		Error:   "Invalid URL format",
		Message: "Please provide a valid URL",
	}

	InvalidValidityResponse = ErrorResponse{
		Error:   "Invalid validity period",
		Message: "Validity must be a positive integer representing minutes",
	}

	InvalidShortcodeResponse = ErrorResponse{
		Error:   "Invalid shortcode format",
		Message: "Shortcode must be 3-20 alphanumeric characters",
	}

	ShortcodeExistsResponse = ErrorResponse{
		Error:   "Shortcode already exists",
		Message: "Please choose a different shortcode",
	}

	ShortcodeNotFoundResponse = ErrorResponse{
		Error:   "Shortcode not found",
		Message: "The requested shortcode does not exist or has expired",
	}

	InvalidRequestBodyResponse = ErrorResponse{
		Error:   "Invalid request body",
		Message: "Request body must be valid JSON",
	}

	RouteNotFoundResponse = ErrorResponse{
		Error:   "Route not found",
		Message: "The requested endpoint does not exist",
	}
)

// ServerError builds the generic 500 body. The message names the operation
// that failed, never the underlying error.
func ServerError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "Internal server error",
		Message: message,
	}
}
