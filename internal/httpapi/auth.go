package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flowforge/orchestrator/internal/apierr"
)

// contextKey avoids collisions on values stashed in a request's context.
type contextKey string

const identityContextKey contextKey = "httpapi.identity"

// IdentityFromContext returns the operator identity an auth middleware
// attached to ctx, if any.
func IdentityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityContextKey).(string)
	return id, ok
}

// SessionProvider authenticates the "operator session" auth path (§6's
// third auth path, alongside the internal service token and MCP bearer
// tokens): HTTP Basic against a fixed admin credential, or a pluggable
// external identity provider.
type SessionProvider interface {
	Authenticate(r *http.Request) (identity string, ok bool)
}

// BasicSessionProvider implements SessionProvider via HTTP Basic auth
// against a single configured admin credential (AUTH_PROVIDER=basic).
type BasicSessionProvider struct {
	Username string
	Password string
}

// Authenticate implements SessionProvider.
func (p BasicSessionProvider) Authenticate(r *http.Request) (string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(p.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(p.Password)) == 1
	if !userOK || !passOK {
		return "", false
	}
	return username, true
}

// ClerkSessionProvider implements SessionProvider via a bearer token
// compared against a configured Clerk secret key (AUTH_PROVIDER=clerk).
//
// This is a deliberate simplification: the dependency set this daemon is
// built from carries no Clerk SDK, so rather than fabricate one, sessions
// are accepted when the bearer token matches the configured secret key
// directly. A deployment that needs real Clerk session/JWT verification
// swaps this provider for one built on Clerk's SDK; SessionProvider is the
// seam that allows it.
type ClerkSessionProvider struct {
	SecretKey string
}

// Authenticate implements SessionProvider.
func (p ClerkSessionProvider) Authenticate(r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok || token == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.SecretKey)) != 1 {
		return "", false
	}
	return "clerk-session", true
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// internalOnly guards the /internal/mcp/* routes (§6): every request must
// carry the shared internal service token, used only for trusted
// service-to-service calls from the workflow executor's own components,
// never exposed to agents or operators.
func internalOnly(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeError(w, apierr.New(apierr.KindAuthentication, "missing or invalid internal service token"))
			return
		}
		next(w, r)
	}
}

// operatorAuth guards the workflow/run/approval management routes (§6):
// requests authenticate via the internal service token, an operator
// session (Basic or Clerk depending on AUTH_PROVIDER), in that order. The
// first that validates wins; none validating is a 401.
func operatorAuth(internalToken string, provider SessionProvider, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Internal-Token"); got != "" {
			if subtle.ConstantTimeCompare([]byte(got), []byte(internalToken)) == 1 {
				next(w, r.WithContext(context.WithValue(r.Context(), identityContextKey, "internal-service")))
				return
			}
			writeError(w, apierr.New(apierr.KindAuthentication, "invalid internal service token"))
			return
		}

		if provider != nil {
			if identity, ok := provider.Authenticate(r); ok {
				next(w, r.WithContext(context.WithValue(r.Context(), identityContextKey, identity)))
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="orchestrator"`)
		writeError(w, apierr.New(apierr.KindAuthentication, "authentication required"))
	}
}

// mcpSessionContextKey carries the validated sessiontoken.Claims for an
// /mcp/* request through to its handler.
const mcpSessionContextKey contextKey = "httpapi.mcpSession"

// mcpAuth guards /mcp/sse and /mcp/messages (§6): these never accept the
// internal service token or an operator session, only a bearer session
// token minted via POST /internal/mcp/generate-token.
func mcpAuth(validate func(ctx context.Context, token string) (any, bool, error), next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, apierr.New(apierr.KindAuthentication, "missing bearer session token"))
			return
		}
		claims, ok, err := validate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, apierr.New(apierr.KindAuthentication, "invalid or expired session token"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), mcpSessionContextKey, claims)))
	}
}
