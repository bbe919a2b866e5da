package handler

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// staticFile caches file content and metadata for the dashboard assets
type staticFile struct {
	content     []byte
	brotli      []byte // pre-compressed content
	gzipped     []byte
	contentType string
	etag        string
	hasHash     bool // whether filename contains hash (can be cached long-term)
}

// NewStaticHandler serves the dashboard bundle in fsys. All files are
// loaded and compressed once at startup; unknown paths fall back to
// index.html for client-side routing.
func NewStaticHandler(fsys fs.FS) http.Handler {
	cache := make(map[string]*staticFile)

	fs.WalkDir(fsys, ".", func(filePath string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		content, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return nil
		}
		cache[filePath] = newStaticFile(filePath, content)
		return nil
	})

	index := cache["index.html"]

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlPath := path.Clean(r.URL.Path)
		if urlPath == "/" || urlPath == "." {
			urlPath = "index.html"
		} else {
			urlPath = strings.TrimPrefix(urlPath, "/")
		}

		file, ok := cache[urlPath]
		if !ok {
			if index == nil {
				http.NotFound(w, r)
				return
			}
			file = index
		}
		serveStatic(w, r, file)
	})
}

func newStaticFile(urlPath string, content []byte) *staticFile {
	f := &staticFile{
		content:     content,
		contentType: getMimeType(urlPath),
		etag:        fmt.Sprintf(`"%x"`, md5.Sum(content)),
		hasHash:     hasContentHash(urlPath),
	}

	if !isCompressible(f.contentType) || len(content) <= 1024 {
		return f
	}

	var br bytes.Buffer
	bw := brotli.NewWriterLevel(&br, brotli.BestCompression)
	if _, err := bw.Write(content); err == nil && bw.Close() == nil && br.Len() < len(content) {
		f.brotli = br.Bytes()
	}

	var gz bytes.Buffer
	if gw, err := gzip.NewWriterLevel(&gz, gzip.BestCompression); err == nil {
		gw.Write(content)
		if gw.Close() == nil && gz.Len() < len(content) {
			f.gzipped = gz.Bytes()
		}
	}
	return f
}

func serveStatic(w http.ResponseWriter, r *http.Request, f *staticFile) {
	switch {
	case f.hasHash:
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	case f.contentType == "text/html; charset=utf-8":
		w.Header().Set("Cache-Control", "no-cache")
	default:
		w.Header().Set("Cache-Control", "public, max-age=86400, must-revalidate")
	}

	w.Header().Set("ETag", f.etag)
	if r.Header.Get("If-None-Match") == f.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Vary", "Accept-Encoding")

	body := f.content
	accept := r.Header.Get("Accept-Encoding")
	switch {
	case f.brotli != nil && strings.Contains(accept, "br"):
		w.Header().Set("Content-Encoding", "br")
		body = f.brotli
	case f.gzipped != nil && strings.Contains(accept, "gzip"):
		w.Header().Set("Content-Encoding", "gzip")
		body = f.gzipped
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// hasContentHash checks if filename contains a content hash (Vite pattern: name-HASH.ext)
func hasContentHash(filePath string) bool {
	if strings.HasPrefix(filePath, "assets/") {
		return true
	}

	base := path.Base(filePath)
	name := strings.TrimSuffix(base, path.Ext(base))

	if idx := strings.LastIndex(name, "-"); idx > 0 {
		hash := name[idx+1:]
		if len(hash) >= 6 && len(hash) <= 12 {
			for _, c := range hash {
				if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
					return false
				}
			}
			return true
		}
	}
	return false
}

func isCompressible(contentType string) bool {
	for _, ct := range []string{
		"text/",
		"application/javascript",
		"application/json",
		"application/xml",
		"image/svg+xml",
	} {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

func getMimeType(filePath string) string {
	switch path.Ext(filePath) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	case ".woff2":
		return "font/woff2"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
