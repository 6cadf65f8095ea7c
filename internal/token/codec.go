// SPDX-License-Identifier: MIT

// Package token signs and verifies the short-lived playback tokens that
// authorize streaming of a single file for a single user. Tokens are
// stateless: nothing is persisted, and validity is entirely determined by
// the signature and the embedded expiry.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opencourse-labs/mediagate/internal/media"
)

// MinSecretLen is the smallest accepted signing secret. HS256 keys shorter
// than the hash size weaken the MAC.
const MinSecretLen = 32

// Payload is the verified content of a playback token.
type Payload struct {
	FileID    string
	Provider  media.Provider
	StartSec  int
	UserID    string
	ModuleID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config configures a Codec.
type Config struct {
	// Secret is the HMAC signing key. Required, at least MinSecretLen bytes.
	Secret []byte
	// Issuer is stamped into and required from every token when set.
	Issuer string
	// Clock supplies the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Codec signs and verifies playback tokens with HS256. The signing
// algorithm and secret stay behind this type; callers only see Issue and
// Verify.
type Codec struct {
	secret []byte
	issuer string
	clock  func() time.Time
}

// New validates cfg and builds a Codec.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("token: secret must be at least %d bytes", MinSecretLen)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Codec{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		clock:  clock,
	}, nil
}

type playbackClaims struct {
	FileID   string `json:"file_id"`
	Provider string `json:"provider"`
	StartSec int    `json:"start_sec"`
	UserID   string `json:"user_id"`
	ModuleID string `json:"module_id,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a token for p, valid from now until now+ttl.
func (c *Codec) Issue(p Payload, ttl time.Duration) (string, error) {
	if p.FileID == "" {
		return "", errors.New("token: file id is required")
	}
	if !p.Provider.Valid() {
		return "", fmt.Errorf("token: unknown provider %q", p.Provider)
	}
	if p.UserID == "" {
		return "", errors.New("token: user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("token: ttl must be positive")
	}

	now := c.clock().UTC()
	claims := playbackClaims{
		FileID:   p.FileID,
		Provider: p.Provider.String(),
		StartSec: p.StartSec,
		UserID:   p.UserID,
		ModuleID: p.ModuleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify parses and validates raw. It returns nil on any failure: bad
// signature, expiry passed, wrong algorithm, malformed claims. Callers map
// nil to a uniform 401 so the response never reveals which check failed.
func (c *Codec) Verify(raw string) *Payload {
	if raw == "" {
		return nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.clock().UTC() }),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &playbackClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil
	}

	claims, ok := parsed.Claims.(*playbackClaims)
	if !ok || !parsed.Valid {
		return nil
	}
	if claims.FileID == "" || claims.UserID == "" {
		return nil
	}
	provider, err := media.ParseProvider(claims.Provider)
	if err != nil {
		return nil
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil
	}
	if claims.StartSec < 0 || claims.StartSec > media.StartSecMax {
		return nil
	}

	return &Payload{
		FileID:    claims.FileID,
		Provider:  provider,
		StartSec:  claims.StartSec,
		UserID:    claims.UserID,
		ModuleID:  claims.ModuleID,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
}
