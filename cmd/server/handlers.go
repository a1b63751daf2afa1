package main

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"scratch-server/server"
)

// createRoutes returns the route registration for either the default file
// browser or, when indexPath is set, a custom single-page app served from the
// index file's directory.
func createRoutes(authorize bool, indexPath string) (func(*server.Router), error) {
	if indexPath == "" {
		return defaultRoutes(authorize), nil
	}
	return indexRoutes(authorize, indexPath)
}

func defaultRoutes(authorize bool) func(*server.Router) {
	return func(r *server.Router) {
		r.AddRoute("/static/{file}?", "GET", handleStatic, authorize)
		r.AddRoute("/api/files", "GET", handleFileDownload, authorize)
		r.AddRoute("/api/directory", "GET", handleDirectory, authorize)
		r.AddRoute("/*", "GET", handleIndex, authorize)
	}
}

// handleStatic serves an embedded asset by name, defaulting to index.html.
func handleStatic(_ string, params server.Params) (*server.Response, error) {
	name, ok := params["file"]
	if !ok {
		name = "index.html"
	}
	data, ok := server.StaticFiles[name]
	if !ok {
		return nil, server.NewApiErrorHTML(404, "File not found")
	}
	resp := server.NewResponse(
		server.StaticBody{Data: data, Name: name},
		contentTypeFor(name, "text/plain"),
		200,
	)
	return resp.AddHeader("Cache-Control", "public, max-age=31536000"), nil
}

// handleFileDownload streams the file at the path query parameter as an
// attachment.
func handleFileDownload(_ string, params server.Params) (*server.Response, error) {
	path, ok := params["path"]
	if !ok {
		return nil, server.NewApiError(500, "Missing path parameter")
	}
	name := filepath.Base(path)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return server.NewResponse(
		server.FileBody{File: file, Name: name, Attachment: true},
		contentTypeFor(name, "application/octet-stream"),
		200,
	), nil
}

// handleDirectory returns the JSON directory listing for the path query
// parameter, resolved under the working directory.
func handleDirectory(_ string, params server.Params) (*server.Response, error) {
	path, ok := params["path"]
	if !ok {
		return nil, server.NewApiError(500, "Missing path parameter")
	}
	listing, err := listDirectory(path)
	if err != nil {
		return nil, err
	}
	return server.NewResponse(server.JSONBody{Value: listing}, "", 200), nil
}

// handleIndex is the catch-all returning the embedded index page.
func handleIndex(_ string, _ server.Params) (*server.Response, error) {
	index, ok := server.StaticFiles["index.html"]
	if !ok {
		return nil, server.NewApiErrorHTML(404, "File not found")
	}
	return server.NewResponse(
		server.StaticBody{Data: index, Name: "index.html"},
		"text/html",
		200,
	), nil
}

// indexRoutes serves a custom index file at / (hot-reloaded on change) and
// files relative to its directory at /*.
func indexRoutes(authorize bool, indexPath string) (func(*server.Router), error) {
	cache, err := newIndexCache(indexPath)
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(indexPath)

	return func(r *server.Router) {
		r.AddRoute("/", "GET", func(_ string, _ server.Params) (*server.Response, error) {
			return server.NewResponse(
				server.StaticBody{Data: cache.Bytes(), Name: cache.Name()},
				contentTypeFor(cache.Name(), "text/plain"),
				200,
			), nil
		}, authorize)

		r.AddRoute("/*", "GET", serveFrom(baseDir), authorize)
	}, nil
}

// serveFrom resolves the wildcard capture under baseDir, rejecting canonical
// paths outside it.
func serveFrom(baseDir string) server.Handler {
	return func(_ string, params server.Params) (*server.Response, error) {
		requested := strings.TrimPrefix(params["wildcard"], "/")
		decoded, err := url.PathUnescape(requested)
		if err != nil {
			decoded = requested
		}

		canonicalBase, err := filepath.Abs(baseDir)
		if err != nil {
			return nil, err
		}
		canonicalBase, err = filepath.EvalSymlinks(canonicalBase)
		if err != nil {
			return nil, err
		}

		target := filepath.Join(canonicalBase, decoded)
		canonical, err := filepath.EvalSymlinks(target)
		if err != nil {
			return nil, server.NewApiErrorHTML(404, "File not found")
		}
		if canonical != canonicalBase && !strings.HasPrefix(canonical, canonicalBase+string(filepath.Separator)) {
			return nil, server.NewApiErrorHTML(403, "Access forbidden: path outside base directory")
		}

		info, err := os.Stat(canonical)
		if err != nil || info.IsDir() {
			return nil, server.NewApiErrorHTML(404, "File not found")
		}

		file, err := os.Open(canonical)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(canonical)
		return server.NewResponse(
			server.FileBody{File: file, Name: name},
			contentTypeFor(name, "application/octet-stream"),
			200,
		), nil
	}
}
