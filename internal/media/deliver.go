package media

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/convert"
	"github.com/tendant/simple-media/internal/format"
)

// DeliverRequest asks for artifact ID as the format named by Ext. Width of
// zero keeps the stored width. RawQuery is forwarded on redirects.
type DeliverRequest struct {
	ID       string
	Ext      string
	Width    int
	RawQuery string
}

// Delivery is either a redirect to the home node or the bytes to serve.
type Delivery struct {
	Redirect    string
	Data        []byte
	ContentType string
	ETag        string
}

// Deliver resolves a CDN request. Artifacts whose blob lives on another node
// are redirected there, never proxied.
func (s *Service) Deliver(ctx context.Context, req DeliverRequest) (Delivery, error) {
	target, ok := format.FromExtension(req.Ext)
	if !ok {
		return Delivery{}, apierr.NewBadRequest("Unsupported file extension")
	}
	if req.Width < 0 || (s.cfg.MaxOutputEdge > 0 && req.Width > s.cfg.MaxOutputEdge) {
		return Delivery{}, apierr.NewInvalidQuery("Invalid width")
	}

	a, err := s.loadArtifact(ctx, req.ID)
	if err != nil {
		return Delivery{}, err
	}
	logger := s.logger.With("artifact_id", a.ID)

	data, err := s.blobs.Read(a.ID)
	if errors.Is(err, blob.ErrNotExist) {
		if !s.isHome(a.HomeNode) {
			s.metrics.Deliveries.WithLabelValues("redirect").Inc()
			return Delivery{Redirect: redirectURL(a.HomeNode, a.ID, req.Ext, req.RawQuery)}, nil
		}
		logger.Error("blob missing on home node")
		return Delivery{}, apierr.NewNotFound("Image not found")
	}
	if err != nil {
		return Delivery{}, apierr.NewInternal(err)
	}

	if a.DisableResizing && (target != a.Format || (req.Width > 0 && req.Width != a.Width)) {
		return Delivery{}, apierr.NewBadRequest("Resizing is disabled for this image")
	}

	out, hit, err := s.cache.Get(ctx, a.ID, target, req.Width)
	if err != nil {
		logger.Warn("variant cache read failed", "error", err)
	}
	if hit {
		s.metrics.VariantCache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.VariantCache.WithLabelValues("miss").Inc()

		start := time.Now()
		out, err = s.converter.Convert(ctx, convert.Request{
			Data:         data,
			Source:       a.Format,
			Target:       target,
			SourceWidth:  a.Width,
			SourceHeight: a.Height,
			Width:        req.Width,
		})
		s.metrics.ConvertSeconds.WithLabelValues(target.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.Conversions.WithLabelValues(target.String(), "failed").Inc()
			logger.Error("conversion failed", "target", target, "width", req.Width, "error", err)
			return Delivery{}, apierr.Wrap(err, apierr.Unknown, http.StatusInternalServerError, "Failed to process image")
		}
		s.metrics.Conversions.WithLabelValues(target.String(), "ok").Inc()

		if err := s.cache.Set(ctx, a.ID, target, req.Width, out); err != nil {
			logger.Warn("variant cache write failed", "error", err)
		}
	}

	s.metrics.Deliveries.WithLabelValues("served").Inc()
	return Delivery{Data: out, ContentType: format.MIME(target), ETag: ETag(out)}, nil
}

func redirectURL(home, id, ext, rawQuery string) string {
	u := strings.TrimRight(home, "/") + "/cdn/" + id + ext
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// ETag is the strong entity tag of data.
func ETag(data []byte) string {
	sum := blake3.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
