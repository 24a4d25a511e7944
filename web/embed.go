// Package web embeds the built chat frontend (dist/) and serves it as a
// single-page application. When dist/ has not been built, non-API routes
// fall back to whatever placeholder index.html is checked in.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves static files from the embedded dist/ tree and falls
// back to index.html for any path with no matching file, so client-side
// routing keeps working on deep links.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if f, err := subFS.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		// No such file, serve the app shell instead.
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
