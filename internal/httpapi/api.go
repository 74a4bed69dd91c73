package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/media"
	"github.com/tendant/simple-media/pkg/schema"
)

const (
	// multipartOverhead is allowed on top of the file size limit for the
	// form framing and the other fields.
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.FromContext(ctx)
	cfg := s.svc.Config()
	if id.Kind == auth.Anonymous && cfg.AuthRequired {
		s.writeError(w, r, apierr.NewMissingAuthorization())
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		s.writeError(w, r, apierr.New(apierr.InvalidContentType, http.StatusUnsupportedMediaType, "Invalid Content-Type header"))
		return
	}

	if cfg.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxFileSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, media.FileTooLarge())
			return
		}
		s.writeError(w, r, apierr.NewBadRequest("Invalid multipart body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, r, apierr.NewBadRequest("Missing required parameters: image"))
		return
	}
	defer file.Close()
	if cfg.MaxFileSize > 0 && hdr.Size > cfg.MaxFileSize {
		s.writeError(w, r, media.FileTooLarge())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, apierr.NewInternal(err))
		return
	}

	disableResizing := false
	if v := r.FormValue("disableResizing"); v != "" {
		disableResizing, err = strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, apierr.NewBadRequest("Invalid disableResizing value"))
			return
		}
	}

	desc, err := s.svc.Ingest(ctx, id, media.Upload{Data: data, DisableResizing: disableResizing})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, desc)
}

func (s *Server) derive(w http.ResponseWriter, r *http.Request) {
	var req schema.DeriveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, apierr.NewBadRequest("Invalid JSON body"))
		return
	}
	desc, err := s.svc.Derive(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, desc)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req media.ListRequest
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, apierr.NewInvalidQuery("Invalid limit query"))
			return
		}
		if n < 1 || n > media.MaxListLimit {
			s.writeError(w, r, apierr.NewInvalidQuery("Invalid limit query"))
			return
		}
		req.Limit = n
	}
	if v := q.Get("cursor"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, r, apierr.NewInvalidQuery("Invalid cursor query"))
			return
		}
		req.Cursor = n
	}

	page, err := s.svc.List(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	var req schema.DeleteRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, apierr.NewBadRequest("Invalid JSON body"))
		return
	}
	if err := s.svc.Delete(r.Context(), auth.FromContext(r.Context()), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, schema.DeleteResponse{Success: true})
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	k, err := s.svc.CreateKey(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, k)
}

func (s *Server) rotateKey(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeKeyRequest(w, r)
	if !ok {
		return
	}
	k, err := s.svc.RotateKey(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, k)
}

func (s *Server) revokeKey(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeKeyRequest(w, r)
	if !ok {
		return
	}
	res, err := s.svc.RevokeKey(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// decodeKeyRequest rejects non-master callers before reading the body.
func (s *Server) decodeKeyRequest(w http.ResponseWriter, r *http.Request) (schema.KeyRequest, bool) {
	if id := auth.FromContext(r.Context()); id.Kind != auth.Master {
		if id.Kind == auth.Anonymous {
			s.writeError(w, r, apierr.NewMissingAuthorization())
		} else {
			s.writeError(w, r, apierr.NewInvalidAuthorization())
		}
		return schema.KeyRequest{}, false
	}
	var req schema.KeyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, apierr.NewBadRequest("Invalid JSON body"))
		return schema.KeyRequest{}, false
	}
	return req, true
}
