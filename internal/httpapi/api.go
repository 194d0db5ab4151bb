package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"pennywise.app/internal/audit"
	"pennywise.app/internal/auth"
	"pennywise.app/internal/obs"
	"pennywise.app/internal/session"
)

// ReadyProbe checks dependencies for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

// Check pings the database when one is configured.
func (p ReadyProbe) Check(ctx context.Context) error {
	if p.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.DB.PingContext(ctx)
}

// API is the HTTP surface of the security core. It only exposes the
// authentication and session lifecycle operations; budget CRUD pages live in
// the surrounding application and merely call these endpoints.
type API struct {
	monitor  *session.Manager
	authn    *auth.Authenticator
	recorder *audit.Recorder
	events   audit.EventStore
	ready    ReadyProbe
	version  string
}

// New constructs the API.
func New(monitor *session.Manager, authn *auth.Authenticator, recorder *audit.Recorder, ready ReadyProbe, version string) *API {
	return &API{
		monitor:  monitor,
		authn:    authn,
		recorder: recorder,
		events:   recorder.Store(),
		ready:    ready,
		version:  version,
	}
}

// Handler builds the routed handler wrapped with metrics and auth.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	mux.HandleFunc("POST /v1/auth/mfa/verify", a.handleMFAVerify)
	mux.HandleFunc("POST /v1/session/activity", a.handleActivity)
	mux.HandleFunc("POST /v1/session/extend", a.handleExtend)
	mux.HandleFunc("GET /v1/session", a.handleSessionStatus)
	mux.HandleFunc("GET /v1/admin/events", a.handleListEvents)
	mux.HandleFunc("PUT /v1/admin/principals/{id}/role", a.handleSetRole)
	mux.HandleFunc("PUT /v1/admin/principals/{id}/status", a.handleSetStatus)

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("GET /metrics", obs.Handler())

	return obs.Instrument(a.withAuth(mux))
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
