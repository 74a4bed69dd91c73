package media

import (
	"context"
	"errors"
	"strconv"

	"github.com/samber/lo"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/store"
	"github.com/tendant/simple-media/pkg/schema"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListRequest is one page request. Cursor is epoch milliseconds; zero starts
// from the newest artifact.
type ListRequest struct {
	Limit  int
	Cursor int64
}

// List returns the artifacts visible to id, newest first. Master sees every
// artifact, an owner its own and a revocation token exactly its artifact.
func (s *Service) List(ctx context.Context, id auth.Identity, req ListRequest) (schema.ListResponse, error) {
	if err := requireCaller(id); err != nil {
		return schema.ListResponse{}, err
	}
	if req.Limit == 0 {
		req.Limit = DefaultListLimit
	}
	if req.Limit < 1 || req.Limit > MaxListLimit {
		return schema.ListResponse{}, apierr.NewInvalidQuery("limit must be between 1 and 100")
	}
	if req.Cursor < 0 {
		return schema.ListResponse{}, apierr.NewInvalidQuery("Invalid cursor")
	}

	if id.Kind == auth.ArtifactScoped {
		a, err := s.repo.FindArtifact(ctx, id.ArtifactID)
		if errors.Is(err, store.ErrNotFound) {
			return schema.ListResponse{Images: []schema.ListedImage{}}, nil
		}
		if err != nil {
			return schema.ListResponse{}, apierr.NewInternal(err)
		}
		return schema.ListResponse{Images: []schema.ListedImage{listed(*a)}}, nil
	}

	q := store.ListQuery{Before: req.Cursor, Limit: req.Limit}
	if id.Kind == auth.Owner {
		owner := id.OwnerID
		q.OwnerID = &owner
	}
	page, err := s.repo.ListArtifacts(ctx, q)
	if err != nil {
		return schema.ListResponse{}, apierr.NewInternal(err)
	}

	resp := schema.ListResponse{
		Images: lo.Map(page, func(a store.Artifact, _ int) schema.ListedImage { return listed(a) }),
	}
	if len(page) == req.Limit {
		next := strconv.FormatInt(page[len(page)-1].CreatedAt, 10)
		resp.NextCursor = &next
	}
	return resp, nil
}

func listed(a store.Artifact) schema.ListedImage {
	return schema.ListedImage{
		ID:                a.ID,
		OwnerUUID:         a.OwnerID,
		OriginalOwnerUUID: a.OwnerLabel,
		CreatedAt:         a.CreatedAt,
		SourceFormat:      a.Format.String(),
		SourceDimensions:  schema.Dimensions{Width: a.Width, Height: a.Height},
	}
}

// Delete removes one artifact and its blob. A revocation token may only
// delete the artifact it was issued for.
func (s *Service) Delete(ctx context.Context, id auth.Identity, req schema.DeleteRequest) error {
	if err := requireCaller(id); err != nil {
		return err
	}
	if req.UUID == "" {
		return apierr.NewBadRequest("uuid is required")
	}
	if id.Kind == auth.ArtifactScoped && id.ArtifactID != req.UUID {
		return apierr.NewInvalidAuthorization()
	}

	a, err := s.loadArtifact(ctx, req.UUID)
	if err != nil {
		return err
	}
	if !id.Owns(a) {
		return apierr.NewInvalidAuthorization()
	}

	if err := s.repo.DeleteArtifact(ctx, a.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NewNotFound("Image not found")
		}
		return apierr.NewInternal(err)
	}
	s.removeBlob(ctx, a.ID)

	s.metrics.Deleted.Inc()
	s.logger.Info("artifact deleted", "artifact_id", a.ID, "by", id.Kind.String())
	s.publish(ctx, schema.Event{Type: schema.EventArtifactDeleted, Artifact: artifactEvent(a)})
	return nil
}

// removeBlob drops the bytes and cached variants of a deleted artifact.
// Failures are logged; the reconciler collects leftovers.
func (s *Service) removeBlob(ctx context.Context, id string) {
	if err := s.blobs.Remove(id); err != nil && !errors.Is(err, blob.ErrNotExist) {
		s.logger.Error("failed to remove blob", "artifact_id", id, "error", err)
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate variants", "artifact_id", id, "error", err)
	}
}
