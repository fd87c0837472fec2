// Package httputil provides JSON response helpers shared by the HTTP
// surface.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "carbonledger/pkg/domain-errors"
)

// statusForCode maps the domain error taxonomy onto HTTP statuses. The map is
// total via the internal fallback in WriteError.
var statusForCode = map[dErrors.Code]int{
	dErrors.CodeUnauthorized:          http.StatusForbidden,
	dErrors.CodePaused:                http.StatusConflict,
	dErrors.CodeFacilityNotFound:      http.StatusNotFound,
	dErrors.CodeEventNotFound:         http.StatusNotFound,
	dErrors.CodeInvalidHash:           http.StatusBadRequest,
	dErrors.CodeInvalidAmount:         http.StatusBadRequest,
	dErrors.CodeInvalidTimestamp:      http.StatusBadRequest,
	dErrors.CodeMetadataTooLong:       http.StatusBadRequest,
	dErrors.CodeDescriptionTooLong:    http.StatusBadRequest,
	dErrors.CodeAlreadyVerified:       http.StatusConflict,
	dErrors.CodeDuplicateEvidence:     http.StatusConflict,
	dErrors.CodeFacilityExists:        http.StatusConflict,
	dErrors.CodeIndexCapacityExceeded: http.StatusConflict,

	dErrors.CodeInvalidInput:    http.StatusBadRequest,
	dErrors.CodeBadRequest:      http.StatusBadRequest,
	dErrors.CodeNotFound:        http.StatusNotFound,
	dErrors.CodeUnauthenticated: http.StatusUnauthorized,
	dErrors.CodeInternal:        http.StatusInternalServerError,
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a coded error onto an HTTP status and JSON body. Internal
// errors omit the description so infrastructure details never leak to
// clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusForCode[code]
	if !ok {
		code = dErrors.CodeInternal
		status = http.StatusInternalServerError
	}

	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}
