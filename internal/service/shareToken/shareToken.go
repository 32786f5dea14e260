// Package shareToken mints and resolves the opaque tokens that expose a single file to
// anonymous downloads.
package shareToken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/fileInfo"
)

const (
	tokenBytes = 32
	// TokenLength is the encoded length of a token: 32 bytes in unpadded base64url.
	TokenLength = 43
	maxAttempts = 5
)

type Store interface {
	SetShareToken(ctx context.Context, ownerID, fileID int64, token string) (*fileInfo.File, error)
	ClearShareToken(ctx context.Context, ownerID, fileID int64) (*fileInfo.File, error)
	GetByShareToken(ctx context.Context, token string) (*fileInfo.File, error)
}

type Issuer struct {
	store Store
	rand  io.Reader
}

func New(store Store) *Issuer {
	return &Issuer{store: store, rand: rand.Reader}
}

// NewWithRand uses r as the entropy source.
func NewWithRand(store Store, r io.Reader) *Issuer {
	return &Issuer{store: store, rand: r}
}

// Issue publishes the file and returns it with its token. A file that is already shared
// keeps its token. Collisions are retried with a fresh token.
func (i *Issuer) Issue(ctx context.Context, ownerID, fileID int64) (*fileInfo.File, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := i.generate()
		if err != nil {
			return nil, err
		}
		f, err := i.store.SetShareToken(ctx, ownerID, fileID, token)
		if errors.Is(err, fileInfo.ErrShareTokenTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("share token: no unique token after %d attempts", maxAttempts)
}

// Revoke makes the file private again; its old token stops resolving.
func (i *Issuer) Revoke(ctx context.Context, ownerID, fileID int64) (*fileInfo.File, error) {
	return i.store.ClearShareToken(ctx, ownerID, fileID)
}

// Resolve returns the shared file for token. Malformed, unknown and revoked tokens are
// all NotFound.
func (i *Issuer) Resolve(ctx context.Context, token string) (*fileInfo.File, error) {
	if !WellFormed(token) {
		return nil, apperr.NotFound("shared file not found")
	}
	return i.store.GetByShareToken(ctx, token)
}

func (i *Issuer) generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.rand, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WellFormed reports whether token could have been minted by an Issuer.
func WellFormed(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}
