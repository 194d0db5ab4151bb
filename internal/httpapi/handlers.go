package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pennywise.app/internal/auth"
	"pennywise.app/internal/session"
)

// tokenTTL bounds the bearer token itself. Session validity is enforced by
// the lifecycle monitor; the token just has to outlive any extendable session.
const tokenTTL = 24 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token         string `json:"token"`
	SessionID     string `json:"session_id"`
	SecurityLevel string `json:"security_level"`
	MFARequired   bool   `json:"mfa_required"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, principal, err := a.monitor.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			respondError(w, http.StatusForbidden, "account locked")
		case errors.Is(err, session.ErrPasswordExpired):
			respondError(w, http.StatusForbidden, "password expired")
		case errors.Is(err, auth.ErrUnauthorized):
			// One message for every mismatch; wrong email and wrong
			// password must be indistinguishable.
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			respondError(w, http.StatusInternalServerError, "sign-in failed")
		}
		return
	}

	token, err := auth.GenerateToken(principal.ID, sess.ID, principal.Role, tokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}
	level := auth.ClassifyLevel(principal, sess.MFAVerified)
	respondJSON(w, http.StatusOK, loginResponse{
		Token:         token,
		SessionID:     sess.ID,
		SecurityLevel: level.String(),
		MFARequired:   principal.MFAEnabled && !sess.MFAVerified,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	if err := a.monitor.SignOut(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

type mfaVerifyRequest struct {
	Code string `json:"code"`
}

func (a *API) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	var req mfaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.monitor.VerifyMFA(r.Context(), sessionID, strings.TrimSpace(req.Code)); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionEnded):
			respondError(w, http.StatusUnauthorized, "session expired")
		default:
			respondError(w, http.StatusUnauthorized, "verification failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	if err := a.monitor.RecordActivity(r.Context(), sessionID, time.Time{}); err != nil {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	left, _ := a.monitor.TimeUntilTimeout(sessionID)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "active",
		"timeout_in_seconds": int(left.Seconds()),
	})
}

func (a *API) handleExtend(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	if err := a.monitor.Extend(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	left, _ := a.monitor.TimeUntilTimeout(sessionID)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "extended",
		"timeout_in_seconds": int(left.Seconds()),
	})
}

type sessionStatusResponse struct {
	SessionID        string `json:"session_id"`
	State            string `json:"state"`
	SecurityLevel    string `json:"security_level"`
	MFAVerified      bool   `json:"mfa_verified"`
	MFARequired      bool   `json:"mfa_required"`
	TimeoutInSeconds int    `json:"timeout_in_seconds"`
}

func (a *API) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	snap, err := a.monitor.Status(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	respondJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID:        snap.SessionID,
		State:            snap.State.String(),
		SecurityLevel:    snap.SecurityLevel.String(),
		MFAVerified:      snap.MFAVerified,
		MFARequired:      snap.MFARequired,
		TimeoutInSeconds: int(snap.TimeUntilTimeout.Seconds()),
	})
}

// handleListEvents exposes the audit trail to principals holding the audit
// permission. This is the review surface for anomaly hunting.
func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), auth.PermSystemAuditView); err != nil {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	principalID := strings.TrimSpace(r.URL.Query().Get("principal_id"))
	if principalID == "" {
		respondError(w, http.StatusBadRequest, "principal_id is required")
		return
	}
	events, err := a.events.ListByPrincipal(r.Context(), principalID, 200)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
