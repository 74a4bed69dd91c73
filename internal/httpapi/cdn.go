package httpapi

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/format"
	"github.com/tendant/simple-media/internal/media"
)

const cdnCacheControl = "public, max-age=31536000, immutable"

func (s *Server) cdn(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	ext := strings.ToLower(path.Ext(file))
	id := strings.TrimSuffix(file, path.Ext(file))

	if _, ok := format.FromExtension(ext); !ok {
		s.banner(w, r, http.StatusBadRequest, "resolve your required format yet", nil)
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.banner(w, r, http.StatusBadRequest, "process the requested file", nil)
			return
		}
		width = n
	}

	d, err := s.svc.Deliver(r.Context(), media.DeliverRequest{
		ID:       id,
		Ext:      ext,
		Width:    width,
		RawQuery: r.URL.RawQuery,
	})
	if err != nil {
		e := apierr.From(err)
		what := "process the requested file"
		if e.Status == http.StatusNotFound {
			what = "find the requested file"
		}
		s.banner(w, r, e.Status, what, err)
		return
	}

	if d.Redirect != "" {
		http.Redirect(w, r, d.Redirect, http.StatusFound)
		return
	}

	w.Header().Set("ETag", d.ETag)
	w.Header().Set("Cache-Control", cdnCacheControl)
	if etagMatches(r.Header.Get("If-None-Match"), d.ETag) {
		s.metrics.Deliveries.WithLabelValues("not_modified").Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(d.Data)
	}
}

// banner writes a plain-text CDN error.
func (s *Server) banner(w http.ResponseWriter, r *http.Request, status int, what string, cause error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("delivery failed", "path", r.URL.Path, "error", cause)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "Sorry, simple-media cannot %s.\n\nsimple-media v%s", what, apierr.Version)
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
