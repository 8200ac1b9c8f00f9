// Package shared owns the JSON envelopes every handler responds with, so
// nominee and admin surfaces answer identically.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "securevault/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the shared error envelope.
// Only the code and message cross the wire; causes stay in the logs.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	msg := "internal error"
	var derr *dErrors.Error
	if errors.As(err, &derr) {
		msg = derr.Message
	}
	WriteJSON(w, status, map[string]string{
		"error":   string(code),
		"message": msg,
	})
}
