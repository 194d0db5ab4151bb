package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pennywise.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
}

// mfaPendingPaths stay reachable while a session still owes its second
// factor: the holder can verify, inspect the session, or sign out, and
// nothing else.
var mfaPendingPaths = []string{
	"/v1/auth/mfa/verify",
	"/v1/auth/logout",
	"/v1/session",
}

// withAuth resolves the bearer token to a session and principal. The token
// only names the session; the session store is the authority, so a signed-out
// or expired session fails here even while its token is formally unexpired.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}

		snap, err := a.monitor.Status(r.Context(), claims.SessionID)
		if err != nil || !snap.State.Live() {
			respondError(w, http.StatusUnauthorized, "session expired")
			return
		}
		principal, err := a.authn.Store().Find(r.Context(), snap.PrincipalID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "session expired")
			return
		}
		if snap.MFARequired && !isMFAPendingPath(r.URL.Path) {
			respondError(w, http.StatusForbidden, "mfa verification required")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithSessionID(ctx, snap.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission gates a handler on the caller's effective permissions.
// The denial body never names the missing permission.
func requirePermission(ctx context.Context, perm auth.Permission) error {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.ErrUnauthorized
	}
	if !principal.HasPermission(perm) {
		return auth.ErrUnauthorized
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func isMFAPendingPath(path string) bool {
	for _, p := range mfaPendingPaths {
		if path == p {
			return true
		}
	}
	return false
}
