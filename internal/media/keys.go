package media

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/store"
	"github.com/tendant/simple-media/pkg/schema"
)

// blobRemovalLimit bounds concurrent blob removals during a cascade.
const blobRemovalLimit = 8

// CreateKey issues a new access key. Master only.
func (s *Service) CreateKey(ctx context.Context, id auth.Identity) (schema.KeyResponse, error) {
	if err := requireMaster(id); err != nil {
		return schema.KeyResponse{}, err
	}
	secret, err := auth.NewSecret(auth.KeyPrefix)
	if err != nil {
		return schema.KeyResponse{}, apierr.NewInternal(err)
	}
	k := &store.AccessKey{UUID: uuid.NewString(), Key: secret}
	if err := s.repo.CreateKey(ctx, k); err != nil {
		return schema.KeyResponse{}, apierr.NewInternal(err)
	}
	s.logger.Info("access key created", "key_uuid", k.UUID)
	return keyResponse(k), nil
}

// RotateKey replaces the secret of an existing key. Master only.
func (s *Service) RotateKey(ctx context.Context, id auth.Identity, req schema.KeyRequest) (schema.KeyResponse, error) {
	if err := requireMaster(id); err != nil {
		return schema.KeyResponse{}, err
	}
	k, err := s.findKey(ctx, req)
	if err != nil {
		return schema.KeyResponse{}, err
	}
	secret, err := auth.NewSecret(auth.KeyPrefix)
	if err != nil {
		return schema.KeyResponse{}, apierr.NewInternal(err)
	}
	if err := s.repo.RotateKey(ctx, k.UUID, secret); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.KeyResponse{}, apierr.NewNotFound("Key not found")
		}
		return schema.KeyResponse{}, apierr.NewInternal(err)
	}
	k.Key = secret
	s.logger.Info("access key rotated", "key_uuid", k.UUID)
	return keyResponse(k), nil
}

// RevokeKey deletes a key. With ContentRemoval its artifacts and their blobs
// are deleted too; otherwise they are orphaned and keep their owner label.
func (s *Service) RevokeKey(ctx context.Context, id auth.Identity, req schema.KeyRequest) (schema.KeyRevokedResponse, error) {
	if err := requireMaster(id); err != nil {
		return schema.KeyRevokedResponse{}, err
	}
	k, err := s.findKey(ctx, req)
	if err != nil {
		return schema.KeyRevokedResponse{}, err
	}

	removed, err := s.repo.RevokeKey(ctx, k.UUID, req.ContentRemoval)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.KeyRevokedResponse{}, apierr.NewNotFound("Key not found")
		}
		return schema.KeyRevokedResponse{}, apierr.NewInternal(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobRemovalLimit)
	for _, artifactID := range removed {
		g.Go(func() error {
			s.removeBlob(gctx, artifactID)
			return nil
		})
	}
	_ = g.Wait()
	s.metrics.Deleted.Add(float64(len(removed)))

	s.logger.Info("access key revoked", "key_uuid", k.UUID, "content_removal", req.ContentRemoval, "removed", len(removed))
	s.publish(ctx, schema.Event{
		Type: schema.EventKeyRevoked,
		Key:  &schema.KeyEvent{UUID: k.UUID, Cascade: req.ContentRemoval, RemovedIDs: removed},
	})

	return schema.KeyRevokedResponse{
		UUID:             k.UUID,
		ContentRemoval:   req.ContentRemoval,
		RemovedArtifacts: len(removed),
	}, nil
}

// findKey resolves a key request addressed by exactly one of uuid or secret.
func (s *Service) findKey(ctx context.Context, req schema.KeyRequest) (*store.AccessKey, error) {
	if (req.UUID == "") == (req.Key == "") {
		return nil, apierr.NewBadRequest("Provide exactly one of uuid or key")
	}
	var (
		k   *store.AccessKey
		err error
	)
	if req.UUID != "" {
		k, err = s.repo.FindKey(ctx, req.UUID)
	} else {
		k, err = s.repo.FindKeyBySecret(ctx, req.Key)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierr.NewNotFound("Key not found")
	}
	if err != nil {
		return nil, apierr.NewInternal(err)
	}
	return k, nil
}

func keyResponse(k *store.AccessKey) schema.KeyResponse {
	return schema.KeyResponse{UUID: k.UUID, Key: k.Key, CreatedAt: k.CreatedAt}
}
