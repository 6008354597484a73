package server

import (
	"encoding/json"
	"net/http"

	"rag-service/internal/apperr"
)

// errorBody is the envelope every failure response carries.
type errorBody struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError converts any error into the JSON envelope. The X-Request-ID
// header is already set by the middleware; the body repeats the id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	writeJSON(w, appErr.Status, errorBody{
		Success: false,
		Error: errorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		RequestID: RequestID(r.Context()),
	})
}
