package handler

import (
	"net/http"
	"time"

	"github.com/verigate/code-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
