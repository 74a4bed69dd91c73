package media

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/convert"
	"github.com/tendant/simple-media/internal/format"
	"github.com/tendant/simple-media/internal/img"
	"github.com/tendant/simple-media/internal/store"
	"github.com/tendant/simple-media/pkg/schema"
)

// Derive materialises a conversion of an existing artifact as a new,
// non-resizable artifact. A target width scales the image keeping its aspect
// ratio, with the height rounded up. A zero width keeps the original size.
func (s *Service) Derive(ctx context.Context, id auth.Identity, req schema.DeriveRequest) (schema.ArtifactDescriptor, error) {
	if err := requireCaller(id); err != nil {
		return schema.ArtifactDescriptor{}, err
	}
	if req.UUID == "" || req.TargetFormat == "" {
		return schema.ArtifactDescriptor{}, apierr.NewBadRequest("uuid and targetFormat are required")
	}
	target := format.Parse(req.TargetFormat)
	if target == format.Unknown {
		target, _ = format.FromExtension("." + strings.ToLower(req.TargetFormat))
	}
	if !format.Deliverable(target) {
		return schema.ArtifactDescriptor{}, apierr.NewBadRequest("Unsupported target format")
	}
	targetWidth := 0
	if req.TargetWidth != nil && *req.TargetWidth != 0 {
		targetWidth = *req.TargetWidth
		if targetWidth < 1 || (s.cfg.MaxOutputEdge > 0 && targetWidth > s.cfg.MaxOutputEdge) {
			return schema.ArtifactDescriptor{}, apierr.NewBadRequest("targetWidth out of range")
		}
	}

	src, err := s.loadArtifact(ctx, req.UUID)
	if err != nil {
		return schema.ArtifactDescriptor{}, err
	}
	if !id.Owns(src) {
		return schema.ArtifactDescriptor{}, apierr.NewInvalidAuthorization()
	}
	if !s.isHome(src.HomeNode) {
		return schema.ArtifactDescriptor{}, apierr.New(apierr.Unknown, http.StatusNotFound, "Wrong server")
	}
	if src.DisableResizing && (target != src.Format || (targetWidth > 0 && targetWidth != src.Width)) {
		return schema.ArtifactDescriptor{}, apierr.NewBadRequest("Resizing is disabled for this image")
	}

	logger := s.logger.With("artifact_id", src.ID)

	data, err := s.blobs.Read(src.ID)
	if errors.Is(err, blob.ErrNotExist) {
		logger.Error("blob missing on home node")
		return schema.ArtifactDescriptor{}, apierr.NewNotFound("Image not found")
	}
	if err != nil {
		return schema.ArtifactDescriptor{}, apierr.NewInternal(err)
	}

	width, height := src.Width, src.Height
	if targetWidth > 0 {
		width, height = targetWidth, img.FitWidth(src.Width, src.Height, targetWidth)
	}

	out, err := s.converter.Convert(ctx, convert.Request{
		Data:         data,
		Source:       src.Format,
		Target:       target,
		SourceWidth:  src.Width,
		SourceHeight: src.Height,
		Width:        width,
		Height:       height,
	})
	if err != nil {
		s.metrics.Conversions.WithLabelValues(target.String(), "failed").Inc()
		logger.Error("derive conversion failed", "target", target, "width", targetWidth, "error", err)
		return schema.ArtifactDescriptor{}, apierr.Wrap(err, apierr.Unknown, http.StatusInternalServerError, "Failed to process image")
	}
	s.metrics.Conversions.WithLabelValues(target.String(), "ok").Inc()

	token, err := auth.NewSecret(auth.TokenPrefix)
	if err != nil {
		return schema.ArtifactDescriptor{}, apierr.NewInternal(err)
	}
	derived := &store.Artifact{
		ID:              uuid.NewString(),
		OwnerID:         src.OwnerID,
		OwnerLabel:      src.OwnerLabel,
		HomeNode:        s.cfg.ServerAddress,
		Format:          target,
		Width:           width,
		Height:          height,
		RevocationToken: token,
		DisableResizing: true,
	}
	if err := s.persist(ctx, derived, out); err != nil {
		return schema.ArtifactDescriptor{}, err
	}

	s.metrics.Derived.WithLabelValues(target.String()).Inc()
	logger.Info("artifact derived", "derived_id", derived.ID, "format", target, "width", width, "height", height)
	ev := artifactEvent(derived)
	ev.ParentID = src.ID
	s.publish(ctx, schema.Event{Type: schema.EventArtifactDerived, Artifact: ev})

	return descriptor(derived), nil
}
