// Package sessiontoken implements the Session Token Store (§4.10): short-
// lived bearer tokens scoping an MCP session to a run, organization, agent,
// and allowed node set, backed by a KV with TTL.
package sessiontoken

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flowforge/orchestrator/internal/apierr"
)

// tokenPrefix is the stable discriminator prepended to every minted token so
// downstream logs and auth dispatch can recognize a session token on sight
// without a KV lookup.
const tokenPrefix = "orch_sess_"

// Claims describes the metadata scoped to a minted session token.
type Claims struct {
	RunID          string   `json:"runId"`
	OrganizationID string   `json:"organizationId,omitempty"`
	AgentID        string   `json:"agentId,omitempty"`
	AllowedNodeIDs []string `json:"allowedNodeIds,omitempty"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// jwtClaims wraps Claims with jwt.RegisteredClaims so tokens are both
// KV-addressable (the raw string is the KV key) and self-verifying (the
// signature binds the payload, so a stolen KV entry without the signing key
// cannot be forged into a new token).
type jwtClaims struct {
	Claims
	jwt.RegisteredClaims
}

// Store is the KV backing the Session Token Store. Entries must expire on
// their own (TTL) so validate's "miss or expiry indistinguishable" contract
// holds without an explicit expiry check racing the backend's own eviction.
type Store interface {
	Set(ctx context.Context, token string, claims Claims, ttl time.Duration) error
	Get(ctx context.Context, token string) (Claims, bool, error)
	Delete(ctx context.Context, token string) error
}

// Minter mints, validates, and revokes session tokens.
type Minter struct {
	store      Store
	signingKey []byte
}

// New constructs a Minter backed by store, signing tokens with signingKey.
func New(store Store, signingKey []byte) *Minter {
	return &Minter{store: store, signingKey: signingKey}
}

// Mint issues a new session token scoped to the given claims, valid for ttl.
func (m *Minter) Mint(ctx context.Context, runID, organizationID, agentID string, allowedNodeIDs []string, ttl time.Duration) (string, error) {
	if runID == "" {
		return "", apierr.New(apierr.KindValidation, "mint session token requires runId")
	}
	if ttl <= 0 {
		return "", apierr.New(apierr.KindValidation, "mint session token requires a positive ttl")
	}

	expiresAt := time.Now().Add(ttl).UTC()
	claims := Claims{
		RunID:          runID,
		OrganizationID: organizationID,
		AgentID:        agentID,
		AllowedNodeIDs: allowedNodeIDs,
		ExpiresAt:      expiresAt,
	}

	raw := jwtClaims{
		Claims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, raw).SignedString(m.signingKey)
	if err != nil {
		return "", apierr.Wrap(apierr.KindDependency, err, "sign session token")
	}
	token := tokenPrefix + signed

	if err := m.store.Set(ctx, token, claims, ttl); err != nil {
		return "", apierr.Wrap(apierr.KindDependency, err, "persist session token")
	}
	return token, nil
}

// Validate returns the token's claims, or ok=false if the token is unknown,
// malformed, or expired. A miss is deliberately indistinguishable from an
// expiry per §4.10.
func (m *Minter) Validate(ctx context.Context, token string) (Claims, bool, error) {
	if len(token) <= len(tokenPrefix) || token[:len(tokenPrefix)] != tokenPrefix {
		return Claims{}, false, nil
	}

	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(token[len(tokenPrefix):], &parsed, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	})
	if err != nil {
		return Claims{}, false, nil
	}

	claims, ok, err := m.store.Get(ctx, token)
	if err != nil {
		return Claims{}, false, apierr.Wrap(apierr.KindDependency, err, "load session token")
	}
	if !ok {
		return Claims{}, false, nil
	}
	return claims, true, nil
}

// Revoke removes token from the store, ending the session immediately
// regardless of its remaining TTL.
func (m *Minter) Revoke(ctx context.Context, token string) error {
	if err := m.store.Delete(ctx, token); err != nil {
		return apierr.Wrap(apierr.KindDependency, err, "revoke session token")
	}
	return nil
}
