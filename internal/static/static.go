// Package static serves the single-page chat UI with entry-document fallback.
package static

import (
	"bytes"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

const indexFile = "index.html"

type Options struct {
	// NoStore disables browser caching of every response (development).
	NoStore bool
	// Inject is inserted before </body> of the entry document.
	Inject string
}

type Handler struct {
	fsys fs.FS
	opts Options
}

func New(fsys fs.FS, opts Options) *Handler {
	return &Handler{fsys: fsys, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.opts.NoStore {
		w.Header().Set("Cache-Control", "no-store")
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || name == indexFile {
		h.serveIndex(w, r)
		return
	}
	info, err := fs.Stat(h.fsys, name)
	if err != nil || info.IsDir() {
		// Client-side routes resolve to the entry document.
		h.serveIndex(w, r)
		return
	}
	http.ServeFileFS(w, r, h.fsys, name)
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(h.fsys, indexFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "read index: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if h.opts.Inject != "" {
		page = inject(page, h.opts.Inject)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !h.opts.NoStore {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(page)
}

func inject(page []byte, snippet string) []byte {
	i := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if i < 0 {
		return append(page, snippet...)
	}
	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:i]...)
	out = append(out, snippet...)
	return append(out, page[i:]...)
}
