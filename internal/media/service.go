// Package media implements ingestion, delivery, derivation, listing,
// deletion and access-key lifecycle on top of the repository and blob store.
package media

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/bus"
	"github.com/tendant/simple-media/internal/cache"
	"github.com/tendant/simple-media/internal/classify"
	"github.com/tendant/simple-media/internal/convert"
	"github.com/tendant/simple-media/internal/metrics"
	"github.com/tendant/simple-media/internal/store"
	"github.com/tendant/simple-media/pkg/schema"
)

// Config carries the limits and node identity the services enforce.
type Config struct {
	ServerAddress  string
	AuthRequired   bool
	MaxFileSize    int64
	MaxImageEdge   int
	MaxImagePixels int64
	MaxOutputEdge  int
}

type Classifier interface {
	Classify(ctx context.Context, data []byte) (classify.Result, error)
}

type Converter interface {
	Convert(ctx context.Context, req convert.Request) ([]byte, error)
}

// Deps are the collaborators of a Service. Cache, Events and Metrics are
// optional.
type Deps struct {
	Repo       *store.Repository
	Blobs      *blob.Store
	Classifier Classifier
	Converter  Converter
	Cache      cache.Variants
	Events     bus.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Service struct {
	cfg        Config
	repo       *store.Repository
	blobs      *blob.Store
	classifier Classifier
	converter  Converter
	cache      cache.Variants
	events     bus.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(cfg Config, deps Deps) *Service {
	s := &Service{
		cfg:        cfg,
		repo:       deps.Repo,
		blobs:      deps.Blobs,
		classifier: deps.Classifier,
		converter:  deps.Converter,
		cache:      deps.Cache,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.events == nil {
		s.events = bus.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// isHome reports whether node names this instance.
func (s *Service) isHome(node string) bool {
	return strings.TrimRight(node, "/") == strings.TrimRight(s.cfg.ServerAddress, "/")
}

func (s *Service) publish(ctx context.Context, ev schema.Event) {
	ev.HappenedAt = time.Now().UnixMilli()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", "type", ev.Type, "error", err)
	}
}

// loadArtifact finds id, mapping malformed and unknown ids to NotFound.
func (s *Service) loadArtifact(ctx context.Context, id string) (*store.Artifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierr.NewNotFound("Image not found")
	}
	a, err := s.repo.FindArtifact(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierr.NewNotFound("Image not found")
	}
	if err != nil {
		return nil, apierr.NewInternal(err)
	}
	return a, nil
}

// requireCaller rejects anonymous callers.
func requireCaller(id auth.Identity) error {
	if id.Kind == auth.Anonymous {
		return apierr.NewMissingAuthorization()
	}
	return nil
}

// requireMaster rejects everyone but the master identity.
func requireMaster(id auth.Identity) error {
	switch id.Kind {
	case auth.Master:
		return nil
	case auth.Anonymous:
		return apierr.NewMissingAuthorization()
	}
	return apierr.NewInvalidAuthorization()
}

func descriptor(a *store.Artifact) schema.ArtifactDescriptor {
	return schema.ArtifactDescriptor{
		ID:                a.ID,
		Owner:             a.OwnerID,
		RevocationToken:   a.RevocationToken,
		ImageSourceFormat: a.Format.String(),
		ImageDimensions:   schema.Dimensions{Width: a.Width, Height: a.Height},
	}
}

func artifactEvent(a *store.Artifact) *schema.ArtifactEvent {
	ev := &schema.ArtifactEvent{
		ID:       a.ID,
		HomeNode: a.HomeNode,
		Format:   a.Format.String(),
		Width:    a.Width,
		Height:   a.Height,
	}
	if a.OwnerID != nil {
		ev.OwnerID = *a.OwnerID
	}
	return ev
}

// persist writes the record and then the blob, removing the record again if
// the blob cannot be written.
func (s *Service) persist(ctx context.Context, a *store.Artifact, data []byte) error {
	if err := s.repo.CreateArtifact(ctx, a); err != nil {
		return apierr.NewInternal(err)
	}
	if err := s.blobs.Write(a.ID, data); err != nil {
		if rbErr := s.repo.DeleteArtifact(context.WithoutCancel(ctx), a.ID); rbErr != nil {
			s.logger.Error("failed to roll back artifact record", "artifact_id", a.ID, "error", rbErr)
		}
		return apierr.NewInternal(err)
	}
	return nil
}
