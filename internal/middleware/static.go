package middleware

import (
	"net/http"
	"path/filepath"
	"strings"
)

// SecurityHeaders sets baseline response headers on every request.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// StaticFileServer serves files from dir, rejecting path traversal and
// limiting to image extensions (store logos and item images).
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Clean(r.URL.Path)
		if strings.Contains(name, "..") {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		switch strings.ToLower(filepath.Ext(name)) {
		case ".png", ".jpg", ".jpeg", ".svg", ".webp":
		default:
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		http.ServeFile(w, r, filepath.Join(dir, name))
	})
}
