// Package auth resolves the credentials presented on the websocket handshake
// into a session identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"LiveBoard/internal/store"
)

// ErrUnauthorized covers missing, malformed, expired and unknown credentials.
var ErrUnauthorized = errors.New("unauthorized")

type Role int

const (
	// Owner sessions hold a signed user token and may join any room.
	Owner Role = iota
	// Guest sessions came in through a room's shared link and stay in that room.
	Guest
)

func (r Role) String() string {
	if r == Guest {
		return "guest"
	}
	return "owner"
}

// Identity is who a session acts as. RoomID is set for guests only.
type Identity struct {
	ID     string
	Role   Role
	RoomID int64
}

// Credentials are the handshake query parameters.
type Credentials struct {
	Token      string
	SessionKey string
}

// SessionKeys looks up the room a shared link grants.
type SessionKeys interface {
	RoomBySessionKey(ctx context.Context, key string) (int64, error)
}

type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Resolver verifies HS256 owner tokens and guest session keys.
type Resolver struct {
	secret []byte
	keys   SessionKeys
}

func NewResolver(secret string, keys SessionKeys) *Resolver {
	return &Resolver{secret: []byte(secret), keys: keys}
}

// Resolve prefers the token when both credentials are given.
func (r *Resolver) Resolve(ctx context.Context, c Credentials) (Identity, error) {
	switch {
	case c.Token != "":
		return r.owner(c.Token)
	case c.SessionKey != "":
		return r.guest(ctx, c.SessionKey)
	default:
		return Identity{}, fmt.Errorf("%w: no credentials", ErrUnauthorized)
	}
}

func (r *Resolver) owner(token string) (Identity, error) {
	if len(r.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: token auth disabled", ErrUnauthorized)
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if c.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token without userId", ErrUnauthorized)
	}
	return Identity{ID: c.UserID, Role: Owner}, nil
}

func (r *Resolver) guest(ctx context.Context, key string) (Identity, error) {
	if r.keys == nil {
		return Identity{}, fmt.Errorf("%w: session keys disabled", ErrUnauthorized)
	}
	room, err := r.keys.RoomBySessionKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, fmt.Errorf("%w: unknown session key", ErrUnauthorized)
	}
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: "guest-" + uuid.NewString(), Role: Guest, RoomID: room}, nil
}

// Sign issues an owner token for userID. Used by the CLI and tests; account
// management lives elsewhere.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// NewSessionKey returns a fresh opaque shared-link key.
func NewSessionKey() string { return uuid.NewString() }
