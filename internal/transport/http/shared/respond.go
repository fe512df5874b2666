// Package shared holds the response helpers every HTTP handler uses, keeping
// the wire envelope identical across features.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "khata/pkg/domain-errors"
)

// ErrorBody is the wire form of a failed request. Reason is the stable
// machine-readable cause and is omitted when the error carries none.
type ErrorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	Status string    `json:"status"`
	Error  ErrorBody `json:"error"`
}

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are on the wire; an encode failure here is not recoverable.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the error envelope. Non-domain
// errors are reported as INTERNAL without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(dErrors.CodeOf(err)), ErrorResponse{Status: "error", Error: BodyFor(err)})
}

// BodyFor renders err in its wire form without writing it. Batch endpoints
// use it to embed per-item failures in a 200 response.
func BodyFor(err error) ErrorBody {
	body := ErrorBody{
		Code:   string(dErrors.CodeOf(err)),
		Reason: dErrors.ReasonOf(err),
	}

	var de *dErrors.Error
	if errors.As(err, &de) {
		body.Message = de.Message()
	} else {
		body.Message = "internal server error"
	}
	return body
}

// StatusFor maps a domain error code to its HTTP status line.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodePolicy:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
