// Package auth resolves bearer tokens into a caller identity.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/store"
)

// Bearer token prefixes. They decide which table a token is looked up in.
const (
	KeyPrefix   = "media_sk_"
	TokenPrefix = "media_ri_"
)

type Kind int

const (
	Anonymous Kind = iota
	Master
	Owner
	ArtifactScoped
)

func (k Kind) String() string {
	switch k {
	case Anonymous:
		return "anonymous"
	case Master:
		return "master"
	case Owner:
		return "owner"
	case ArtifactScoped:
		return "artifact"
	}
	return "invalid"
}

// Identity is the caller of one request. OwnerID is set for Owner and
// ArtifactID for ArtifactScoped.
type Identity struct {
	Kind       Kind
	OwnerID    string
	ArtifactID string
}

// Owns reports whether the identity may act on a as its owner.
func (i Identity) Owns(a *store.Artifact) bool {
	switch i.Kind {
	case Master:
		return true
	case Owner:
		return a.OwnerID != nil && *a.OwnerID == i.OwnerID
	case ArtifactScoped:
		return a.ID == i.ArtifactID
	}
	return false
}

// NewSecret returns prefix followed by 32 random bytes, base64url encoded with
// the '-' and '_' characters removed.
func NewSecret(prefix string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	s = strings.NewReplacer("-", "", "_", "").Replace(s)
	return prefix + s, nil
}

type KeyLookup interface {
	FindKeyBySecret(ctx context.Context, secret string) (*store.AccessKey, error)
}

type TokenLookup interface {
	FindArtifactByToken(ctx context.Context, token string) (*store.Artifact, error)
}

type Resolver struct {
	master string
	keys   KeyLookup
	tokens TokenLookup
}

// NewResolver creates a resolver. An empty master key disables the master
// identity.
func NewResolver(master string, keys KeyLookup, tokens TokenLookup) *Resolver {
	return &Resolver{master: master, keys: keys, tokens: tokens}
}

// Resolve maps an Authorization header value to an identity. An empty header
// is Anonymous; anything unrecognised is InvalidAuthorization.
func (r *Resolver) Resolve(ctx context.Context, header string) (Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Identity{Kind: Anonymous}, nil
	}
	token := header
	if scheme, rest, ok := strings.Cut(header, " "); ok {
		if !strings.EqualFold(scheme, "Bearer") {
			return Identity{}, apierr.NewInvalidAuthorization()
		}
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return Identity{}, apierr.NewInvalidAuthorization()
	}

	if r.master != "" && subtle.ConstantTimeCompare([]byte(token), []byte(r.master)) == 1 {
		return Identity{Kind: Master}, nil
	}

	switch {
	case strings.HasPrefix(token, KeyPrefix):
		k, err := r.keys.FindKeyBySecret(ctx, token)
		if err != nil {
			return Identity{}, lookupErr(err)
		}
		return Identity{Kind: Owner, OwnerID: k.UUID}, nil

	case strings.HasPrefix(token, TokenPrefix):
		a, err := r.tokens.FindArtifactByToken(ctx, token)
		if err != nil {
			return Identity{}, lookupErr(err)
		}
		return Identity{Kind: ArtifactScoped, ArtifactID: a.ID}, nil
	}
	return Identity{}, apierr.NewInvalidAuthorization()
}

func lookupErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apierr.NewInvalidAuthorization()
	}
	return apierr.NewInternal(err)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Identity{Kind: Anonymous}
}
