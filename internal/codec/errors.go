// Package codec renders domain values onto the OpenAI-compatible wire format.
package codec

import (
	"encoding/json"
	"net/http"

	"github.com/iemabdullah/ai-generator-2api/internal/domain"
)

// ErrorType is the only error type the gateway reports.
const ErrorType = "api_error"

// ErrorBody is the OpenAI-style error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the message and machine-readable code of a failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// ErrorResponse is a formatted error ready to be written.
type ErrorResponse struct {
	StatusCode int
	Body       []byte
}

// FormatError converts any error to a status code and JSON body.
// Unclassified errors become internal errors.
func FormatError(err error) *ErrorResponse {
	apiErr := domain.AsAPIError(err)

	body, _ := json.Marshal(ErrorBody{
		Error: ErrorDetail{
			Message: apiErr.Message,
			Type:    ErrorType,
			Code:    string(apiErr.Code()),
		},
	})

	return &ErrorResponse{
		StatusCode: apiErr.HTTPStatusCode(),
		Body:       body,
	}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	resp := FormatError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		WriteError(w, domain.ErrInternal("failed to encode response").WithCause(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
