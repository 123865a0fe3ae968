package kiosk

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

//go:embed web/*
var placeholder embed.FS

const indexFile = "index.html"

// Handler returns an http.Handler serving the kiosk bundle from dir.
//
// When dir is empty or does not exist the embedded placeholder is served
// instead. Mount it under a prefix with http.StripPrefix.
// Panics if the embedded placeholder cannot be loaded (build error).
func Handler(dir string) http.Handler {
	return newHandler(bundleFS(dir))
}

// Installed reports whether dir holds a kiosk bundle.
func Installed(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, indexFile))
	return err == nil && !info.IsDir()
}

func bundleFS(dir string) fs.FS {
	if Installed(dir) {
		return os.DirFS(dir)
	}
	webFS, err := fs.Sub(placeholder, "web")
	if err != nil {
		panic(fmt.Sprintf("kiosk: failed to load embedded placeholder: %v", err))
	}
	return webFS
}

func newHandler(bundle fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(bundle))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upath := path.Clean("/" + r.URL.Path)
		name := upath[1:]

		if name == "" || name == indexFile {
			serveIndex(w, r, fileServer)
			return
		}

		info, err := fs.Stat(bundle, name)
		if err == nil && info.IsDir() {
			serveIndex(w, r, fileServer)
			return
		}
		if err != nil {
			// Client-side route: let the bundle's router resolve it.
			if path.Ext(name) == "" {
				serveIndex(w, r, fileServer)
				return
			}
			http.NotFound(w, r)
			return
		}

		// Built assets carry a content hash in their name.
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(w, r)
	})
}

// serveIndex serves index.html uncached so a reinstalled bundle is picked
// up on the next reload.
func serveIndex(w http.ResponseWriter, r *http.Request, fileServer http.Handler) {
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	fileServer.ServeHTTP(w, r2)
}
