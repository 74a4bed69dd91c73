package media

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/store"
	"github.com/tendant/simple-media/pkg/schema"
)

// Upload is one uploaded file.
type Upload struct {
	Data            []byte
	DisableResizing bool
}

// FileTooLarge is reported for uploads above the configured maximum size.
func FileTooLarge() *apierr.Error {
	return apierr.NewInvalidImage(http.StatusRequestEntityTooLarge, "File too large")
}

// Ingest classifies an upload, enforces the size limits and stores it as a
// new artifact homed on this instance.
func (s *Service) Ingest(ctx context.Context, id auth.Identity, up Upload) (schema.ArtifactDescriptor, error) {
	switch id.Kind {
	case auth.Anonymous:
		if s.cfg.AuthRequired {
			return schema.ArtifactDescriptor{}, apierr.NewMissingAuthorization()
		}
	case auth.ArtifactScoped:
		return schema.ArtifactDescriptor{}, apierr.NewInvalidAuthorization()
	}

	if s.cfg.MaxFileSize > 0 && int64(len(up.Data)) > s.cfg.MaxFileSize {
		return schema.ArtifactDescriptor{}, FileTooLarge()
	}
	if len(up.Data) == 0 {
		return schema.ArtifactDescriptor{}, apierr.NewInvalidImage(http.StatusBadRequest, "Empty image")
	}

	res, err := s.classifier.Classify(ctx, up.Data)
	if err != nil {
		s.metrics.Classifications.WithLabelValues("failed").Inc()
		s.logger.Info("rejected upload", "error", err)
		return schema.ArtifactDescriptor{}, apierr.Wrap(err, apierr.InvalidImageInput, http.StatusBadRequest, "Invalid image")
	}
	s.metrics.Classifications.WithLabelValues("ok").Inc()

	if (s.cfg.MaxImageEdge > 0 && (res.Width > s.cfg.MaxImageEdge || res.Height > s.cfg.MaxImageEdge)) ||
		(s.cfg.MaxImagePixels > 0 && int64(res.Width)*int64(res.Height) > s.cfg.MaxImagePixels) {
		return schema.ArtifactDescriptor{}, apierr.NewInvalidImage(http.StatusBadRequest, "Image dimensions too large")
	}

	token, err := auth.NewSecret(auth.TokenPrefix)
	if err != nil {
		return schema.ArtifactDescriptor{}, apierr.NewInternal(err)
	}

	a := &store.Artifact{
		ID:              uuid.NewString(),
		HomeNode:        s.cfg.ServerAddress,
		Format:          res.Format,
		Width:           res.Width,
		Height:          res.Height,
		RevocationToken: token,
		DisableResizing: up.DisableResizing,
	}
	if id.Kind == auth.Owner {
		owner := id.OwnerID
		a.OwnerID = &owner
		a.OwnerLabel = &owner
	}

	if err := s.persist(ctx, a, up.Data); err != nil {
		return schema.ArtifactDescriptor{}, err
	}

	s.metrics.Ingested.WithLabelValues(a.Format.String()).Inc()
	s.logger.Info("artifact ingested", "artifact_id", a.ID, "format", a.Format, "width", a.Width, "height", a.Height)
	s.publish(ctx, schema.Event{Type: schema.EventArtifactCreated, Artifact: artifactEvent(a)})

	return descriptor(a), nil
}
