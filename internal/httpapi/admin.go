package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"pennywise.app/internal/audit"
	"pennywise.app/internal/auth"
	"pennywise.app/internal/obs"
	"pennywise.app/internal/session"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

// handleSetRole reassigns a principal's role. The grant/revoke delta is
// appended to the audit trail and every live session of the target is
// terminated: privilege changes take effect at the next login, never by
// silently widening a running session.
func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), auth.PermRolesManage); err != nil {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	targetID := strings.TrimSpace(r.PathValue("id"))
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown role")
		return
	}

	target, err := a.authn.Store().Find(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			respondError(w, http.StatusNotFound, "principal not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "role update failed")
		return
	}
	if target.Role == role {
		respondJSON(w, http.StatusOK, map[string]string{"status": "unchanged", "role": role.String()})
		return
	}

	granted, revoked := permissionDelta(target.Role, role)
	perms := make([]auth.Permission, 0, len(auth.AllPermissions))
	newSet := auth.PermissionsFor(role)
	for _, p := range auth.AllPermissions {
		if _, ok := newSet[p]; ok {
			perms = append(perms, p)
		}
	}
	if err := a.authn.Store().UpdateRole(r.Context(), targetID, role, perms); err != nil {
		respondError(w, http.StatusInternalServerError, "role update failed")
		return
	}

	actorID := ""
	if actor, ok := auth.PrincipalFromContext(r.Context()); ok {
		actorID = actor.ID
	}
	if len(granted) > 0 {
		a.record(r.Context(), &audit.SecurityEvent{
			Type:        audit.EventPermissionGranted,
			PrincipalID: targetID,
			Success:     true,
			RiskLevel:   audit.RiskMedium,
			Details: map[string]string{
				"actor_id":    actorID,
				"role":        role.String(),
				"permissions": joinPermissions(granted),
			},
		})
	}
	if len(revoked) > 0 {
		a.record(r.Context(), &audit.SecurityEvent{
			Type:        audit.EventPermissionRevoked,
			PrincipalID: targetID,
			Success:     true,
			RiskLevel:   audit.RiskMedium,
			Details: map[string]string{
				"actor_id":    actorID,
				"role":        role.String(),
				"permissions": joinPermissions(revoked),
			},
		})
	}

	if err := a.monitor.TerminatePrincipalSessions(r.Context(), targetID, session.ReasonRoleChange); err != nil {
		obs.LogEntry(map[string]any{"type": "session_terminate_failed", "principal_id": targetID, "error": err.Error()})
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated", "role": role.String()})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// handleSetStatus flips a principal's account status. Moving off Active ends
// every live session the principal holds.
func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	if err := requirePermission(r.Context(), auth.PermUsersEdit); err != nil {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	targetID := strings.TrimSpace(r.PathValue("id"))
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := auth.ParseAccountStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if err := a.authn.Store().UpdateStatus(r.Context(), targetID, status); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			respondError(w, http.StatusNotFound, "principal not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "status update failed")
		return
	}

	if status == auth.StatusLocked {
		actorID := ""
		if actor, ok := auth.PrincipalFromContext(r.Context()); ok {
			actorID = actor.ID
		}
		a.record(r.Context(), &audit.SecurityEvent{
			Type:        audit.EventAccountLocked,
			PrincipalID: targetID,
			Success:     true,
			RiskLevel:   audit.RiskCritical,
			Details:     map[string]string{"actor_id": actorID, "reason": "administrative lock"},
		})
	}
	if status != auth.StatusActive {
		if err := a.monitor.TerminatePrincipalSessions(r.Context(), targetID, session.ReasonAccountInactive); err != nil {
			obs.LogEntry(map[string]any{"type": "session_terminate_failed", "principal_id": targetID, "error": err.Error()})
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

// permissionDelta lists the permissions gained and lost moving between roles,
// in registry order.
func permissionDelta(from, to auth.Role) (granted, revoked []auth.Permission) {
	fromSet := auth.PermissionsFor(from)
	toSet := auth.PermissionsFor(to)
	for _, p := range auth.AllPermissions {
		_, had := fromSet[p]
		_, has := toSet[p]
		switch {
		case has && !had:
			granted = append(granted, p)
		case had && !has:
			revoked = append(revoked, p)
		}
	}
	return granted, revoked
}

func joinPermissions(perms []auth.Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func (a *API) record(ctx context.Context, event *audit.SecurityEvent) {
	if err := a.recorder.Record(ctx, event); err != nil {
		obs.LogEntry(map[string]any{"type": "audit_record_failed", "error": err.Error()})
	}
}
