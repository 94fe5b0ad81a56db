package api

import (
	"io/fs"
	"net/http"
	"strings"
)

// StaticFileServer serves the UI shell with SPA fallback.
// It returns index.html for any non-file request so the shell can render
// the navigator's routes (/login, /profile, ...) itself.
type StaticFileServer struct {
	subFS      fs.FS // Sub-filesystem starting at fileRoot
	fileServer http.Handler
}

// NewStaticFileServer creates a new static file server.
// The staticFS parameter is typically os.DirFS of the built shell.
// The fileRoot is the subdirectory within fs (e.g., "static" for //go:embed static).
// If fileRoot is empty, staticFS is used directly.
func NewStaticFileServer(staticFS fs.FS, fileRoot string) *StaticFileServer {
	var subFS fs.FS
	if fileRoot != "" {
		var err error
		subFS, err = fs.Sub(staticFS, fileRoot)
		if err != nil {
			// Fallback to original fs if Sub fails
			subFS = staticFS
		}
	} else {
		subFS = staticFS
	}

	return &StaticFileServer{
		subFS:      subFS,
		fileServer: http.FileServer(http.FS(subFS)),
	}
}

// ServeHTTP implements http.Handler.
// It serves static files and falls back to index.html for SPA routing.
func (s *StaticFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	// Check if file exists
	if _, err := fs.Stat(s.subFS, path); err == nil {
		// File exists, serve it
		s.fileServer.ServeHTTP(w, r)
		return
	}

	// File doesn't exist, serve index.html for SPA routing
	content, err := fs.ReadFile(s.subFS, "index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// hostPrefixes are served by the API handler rather than the UI shell
var hostPrefixes = []string{"/api", "/health", "/metrics", "/ws"}

// WithStaticFiles wraps an API router with static file serving.
// Host routes (/api, /health, /metrics, /ws) are handled by the apiHandler,
// all other routes fall through to the static file server.
func WithStaticFiles(apiHandler http.Handler, staticServer *StaticFileServer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		for _, prefix := range hostPrefixes {
			if strings.HasPrefix(path, prefix) {
				apiHandler.ServeHTTP(w, r)
				return
			}
		}

		// Static files
		staticServer.ServeHTTP(w, r)
	})
}
