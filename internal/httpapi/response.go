package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/goods/httpbuf"

	"keydirectory/internal/apperr"
)

// writeJSON encodes v into a buffered response before committing it to w,
// so a mid-encode failure never leaves a truncated JSON body on the wire.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf := httpbuf.NewBuffer()
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	buf.Header().Set("Content-Type", "application/json; charset=utf-8")
	buf.WriteHeader(status)
	buf.Apply(w)
}

// writeError renders err per spec section 7: apperr.Error carries its own
// status and an exposable message; anything else is an opaque 500 after
// being reported to Sentry.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*apperr.Error); ok {
		msg := appErr.Msg
		if !appErr.Expose {
			apperr.Report(appErr)
			msg = "internal error"
		}
		writeJSON(w, appErr.Status(), map[string]string{"error": string(appErr.Kind), "message": msg})
		return
	}
	apperr.Report(err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal", "message": "internal error"})
}
