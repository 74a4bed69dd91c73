package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("record not found")

// ListQuery selects one page of artifacts, newest first. A nil OwnerID lists
// every artifact; Before of zero starts from the newest.
type ListQuery struct {
	OwnerID *string
	Before  int64
	Limit   int
}

type Repository struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	last int64
}

type Option func(*Repository)

// WithClock overrides the time source used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func New(db *gorm.DB, opts ...Option) *Repository {
	r := &Repository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate creates or updates the images and api_keys tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Artifact{}, &AccessKey{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// stamp returns the current time in milliseconds, strictly greater than any
// value it returned before.
func (r *Repository) stamp() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms := r.now().UnixMilli()
	if ms <= r.last {
		ms = r.last + 1
	}
	r.last = ms
	return ms
}

// CreateArtifact inserts a and assigns its CreatedAt.
func (r *Repository) CreateArtifact(ctx context.Context, a *Artifact) error {
	a.CreatedAt = r.stamp()
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

func (r *Repository) FindArtifact(ctx context.Context, id string) (*Artifact, error) {
	var a Artifact
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error; err != nil {
		return nil, notFound(err, "find artifact")
	}
	return &a, nil
}

func (r *Repository) FindArtifactByToken(ctx context.Context, token string) (*Artifact, error) {
	var a Artifact
	if err := r.db.WithContext(ctx).Where("revocation_token = ?", token).Take(&a).Error; err != nil {
		return nil, notFound(err, "find artifact by token")
	}
	return &a, nil
}

// ListArtifacts returns one keyset page ordered by created_at descending.
func (r *Repository) ListArtifacts(ctx context.Context, q ListQuery) ([]Artifact, error) {
	tx := r.db.WithContext(ctx).Model(&Artifact{})
	if q.OwnerID != nil {
		tx = tx.Where("owner_id = ?", *q.OwnerID)
	}
	if q.Before > 0 {
		tx = tx.Where("created_at < ?", q.Before)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []Artifact
	if err := tx.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return out, nil
}

// ListHomedAt returns every artifact whose blob lives on node.
func (r *Repository) ListHomedAt(ctx context.Context, node string) ([]Artifact, error) {
	var out []Artifact
	if err := r.db.WithContext(ctx).Where("home_node = ?", node).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list artifacts for node: %w", err)
	}
	return out, nil
}

// ArtifactExists reports whether a record with id exists.
func (r *Repository) ArtifactExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Artifact{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count artifact: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) DeleteArtifact(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Artifact{})
	if res.Error != nil {
		return fmt.Errorf("delete artifact: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateKey(ctx context.Context, k *AccessKey) error {
	k.CreatedAt = r.now().UnixMilli()
	if err := r.db.WithContext(ctx).Create(k).Error; err != nil {
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

func (r *Repository) FindKey(ctx context.Context, uuid string) (*AccessKey, error) {
	var k AccessKey
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).Take(&k).Error; err != nil {
		return nil, notFound(err, "find key")
	}
	return &k, nil
}

func (r *Repository) FindKeyBySecret(ctx context.Context, secret string) (*AccessKey, error) {
	var k AccessKey
	if err := r.db.WithContext(ctx).Where(map[string]any{"key": secret}).Take(&k).Error; err != nil {
		return nil, notFound(err, "find key by secret")
	}
	return &k, nil
}

// RotateKey replaces the secret of the key identified by uuid.
func (r *Repository) RotateKey(ctx context.Context, uuid, secret string) error {
	res := r.db.WithContext(ctx).Model(&AccessKey{}).Where("uuid = ?", uuid).Update("key", secret)
	if res.Error != nil {
		return fmt.Errorf("rotate key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeKey deletes the key and, in one transaction, either clears the owner
// of its artifacts (cascade false) or deletes them (cascade true). The ids of
// deleted artifacts are returned so their blobs can be removed.
func (r *Repository) RevokeKey(ctx context.Context, uuid string, cascade bool) ([]string, error) {
	var removed []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("uuid = ?", uuid).Delete(&AccessKey{})
		if res.Error != nil {
			return fmt.Errorf("delete key: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		owned := tx.Model(&Artifact{}).Where("owner_id = ?", uuid)
		if !cascade {
			if err := owned.Update("owner_id", nil).Error; err != nil {
				return fmt.Errorf("orphan artifacts: %w", err)
			}
			return nil
		}
		if err := owned.Pluck("id", &removed).Error; err != nil {
			return fmt.Errorf("collect artifacts: %w", err)
		}
		if len(removed) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", removed).Delete(&Artifact{}).Error; err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
