package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/store"
)

type fakeLookup struct {
	keys      map[string]string
	artifacts map[string]string
}

func (f fakeLookup) FindKeyBySecret(_ context.Context, secret string) (*store.AccessKey, error) {
	if id, ok := f.keys[secret]; ok {
		return &store.AccessKey{UUID: id, Key: secret}, nil
	}
	return nil, store.ErrNotFound
}

func (f fakeLookup) FindArtifactByToken(_ context.Context, token string) (*store.Artifact, error) {
	if id, ok := f.artifacts[token]; ok {
		return &store.Artifact{ID: id, RevocationToken: token}, nil
	}
	return nil, store.ErrNotFound
}

func TestResolve(t *testing.T) {
	lookup := fakeLookup{
		keys:      map[string]string{"media_sk_abc": "key-1"},
		artifacts: map[string]string{"media_ri_xyz": "art-1"},
	}
	r := NewResolver("master-secret", lookup, lookup)

	tests := []struct {
		name   string
		header string
		want   Identity
		code   apierr.Code
	}{
		{"empty", "", Identity{Kind: Anonymous}, 0},
		{"master", "Bearer master-secret", Identity{Kind: Master}, 0},
		{"master bare", "master-secret", Identity{Kind: Master}, 0},
		{"owner", "Bearer media_sk_abc", Identity{Kind: Owner, OwnerID: "key-1"}, 0},
		{"artifact", "bearer media_ri_xyz", Identity{Kind: ArtifactScoped, ArtifactID: "art-1"}, 0},
		{"unknown key", "Bearer media_sk_nope", Identity{}, apierr.InvalidAuthorization},
		{"unknown token", "Bearer media_ri_nope", Identity{}, apierr.InvalidAuthorization},
		{"wrong scheme", "Basic dXNlcjpwYXNz", Identity{}, apierr.InvalidAuthorization},
		{"garbage", "Bearer hello", Identity{}, apierr.InvalidAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.header)
			if tt.code != 0 {
				var apiErr *apierr.Error
				require.True(t, errors.As(err, &apiErr), "expected *apierr.Error, got %v", err)
				assert.Equal(t, tt.code, apiErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithoutMaster(t *testing.T) {
	r := NewResolver("", fakeLookup{}, fakeLookup{})
	_, err := r.Resolve(context.Background(), "Bearer ")
	assert.Error(t, err)
	_, err = r.Resolve(context.Background(), "Bearer anything")
	assert.Error(t, err)
}

func TestOwns(t *testing.T) {
	owner := "key-1"
	a := &store.Artifact{ID: "art-1", OwnerID: &owner}
	orphan := &store.Artifact{ID: "art-2"}

	assert.True(t, Identity{Kind: Master}.Owns(orphan))
	assert.True(t, Identity{Kind: Owner, OwnerID: "key-1"}.Owns(a))
	assert.False(t, Identity{Kind: Owner, OwnerID: "key-2"}.Owns(a))
	assert.False(t, Identity{Kind: Owner, OwnerID: "key-1"}.Owns(orphan))
	assert.True(t, Identity{Kind: ArtifactScoped, ArtifactID: "art-1"}.Owns(a))
	assert.False(t, Identity{Kind: ArtifactScoped, ArtifactID: "art-1"}.Owns(orphan))
	assert.False(t, Identity{Kind: Anonymous}.Owns(a))
}

func TestNewSecret(t *testing.T) {
	s, err := NewSecret(KeyPrefix)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, KeyPrefix))
	body := strings.TrimPrefix(s, KeyPrefix)
	assert.NotContains(t, body, "-")
	assert.NotContains(t, body, "_")
	assert.Greater(t, len(body), 30)

	other, err := NewSecret(KeyPrefix)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestContextIdentity(t *testing.T) {
	assert.Equal(t, Anonymous, FromContext(context.Background()).Kind)
	ctx := WithIdentity(context.Background(), Identity{Kind: Owner, OwnerID: "k"})
	assert.Equal(t, "k", FromContext(ctx).OwnerID)
}
