package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the API and hands every other path to site.
func NewRouter(h *Handlers, site http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.HandleAsk(w, r)
			return
		}
		methodNotAllowed(w, http.MethodPost)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.HandleToken(w, r)
			return
		}
		methodNotAllowed(w, http.MethodGet)
	})

	mux.HandleFunc("/events/", func(w http.ResponseWriter, r *http.Request) {
		// /events/{user_id}
		id := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/events/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.HandleListEvents(w, r, id)
	})

	mux.Handle("/", site)

	return mux
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
