package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"pennywise.app/internal/audit"
	"pennywise.app/internal/auth"
	"pennywise.app/internal/session"
)

const testPassword = "s3cret-pw"

type apiFixture struct {
	handler    http.Handler
	principals *auth.MemoryPrincipalStore
	events     *audit.MemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	t.Setenv("PENNYWISE_AUTH_SECRET", "unit-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	principals := auth.NewMemoryPrincipalStore()
	events := audit.NewMemoryStore()
	recorder := audit.NewRecorder(events)
	authn, err := auth.NewAuthenticator(principals, recorder)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	monitor, err := session.NewManager(session.NewMemoryStore(), authn, recorder)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	api := New(monitor, authn, recorder, ReadyProbe{}, "test")
	return &apiFixture{
		handler:    api.Handler(),
		principals: principals,
		events:     events,
	}
}

func (f *apiFixture) seed(t *testing.T, id, email string, role auth.Role) *auth.Principal {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	p := &auth.Principal{
		ID:                id,
		Email:             email,
		Role:              role,
		Status:            auth.StatusActive,
		PasswordHash:      hash,
		PasswordChangedAt: time.Now().UTC(),
	}
	if err := f.principals.Create(context.Background(), p); err != nil {
		t.Fatalf("Create principal: %v", err)
	}
	return p
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, email string) loginResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: email, Password: testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp
}

func TestLoginLogoutFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t, "p-1", "kim@example.com", auth.RoleStandardUser)

	resp := f.login(t, "kim@example.com")
	if resp.Token == "" || resp.SessionID == "" {
		t.Fatalf("incomplete login response: %+v", resp)
	}
	if resp.SecurityLevel != "low" {
		t.Fatalf("security level = %s, want low", resp.SecurityLevel)
	}
	if resp.MFARequired {
		t.Fatal("mfa_required set for non-enrolled principal")
	}

	status := f.do(t, http.MethodGet, "/v1/session", resp.Token, nil)
	if status.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", status.Code, status.Body.String())
	}
	var snap sessionStatusResponse
	if err := json.Unmarshal(status.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap.State != "active" || snap.SessionID != resp.SessionID {
		t.Fatalf("unexpected status: %+v", snap)
	}
	if snap.TimeoutInSeconds <= 0 {
		t.Fatalf("countdown missing: %+v", snap)
	}

	activity := f.do(t, http.MethodPost, "/v1/session/activity", resp.Token, nil)
	if activity.Code != http.StatusOK {
		t.Fatalf("activity = %d: %s", activity.Code, activity.Body.String())
	}

	logout := f.do(t, http.MethodPost, "/v1/auth/logout", resp.Token, nil)
	if logout.Code != http.StatusOK {
		t.Fatalf("logout = %d: %s", logout.Code, logout.Body.String())
	}

	// The token is formally unexpired but the session is gone.
	after := f.do(t, http.MethodGet, "/v1/session", resp.Token, nil)
	if after.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d, want 401", after.Code)
	}
}

func TestMFAPendingSessionIsGated(t *testing.T) {
	f := newAPIFixture(t)
	p := f.seed(t, "p-1", "kim@example.com", auth.RoleStandardUser)
	secret, _, err := auth.GenerateMFASecret(p.Email)
	if err != nil {
		t.Fatalf("GenerateMFASecret: %v", err)
	}
	if err := f.principals.UpdateMFA(context.Background(), p.ID, true, secret); err != nil {
		t.Fatalf("UpdateMFA: %v", err)
	}

	resp := f.login(t, "kim@example.com")
	if !resp.MFARequired {
		t.Fatal("mfa_required not set for enrolled principal")
	}

	blocked := f.do(t, http.MethodPost, "/v1/session/activity", resp.Token, nil)
	if blocked.Code != http.StatusForbidden {
		t.Fatalf("activity before verification = %d, want 403", blocked.Code)
	}

	// Session status and the verify endpoint stay reachable while pending.
	status := f.do(t, http.MethodGet, "/v1/session", resp.Token, nil)
	if status.Code != http.StatusOK {
		t.Fatalf("status while pending = %d: %s", status.Code, status.Body.String())
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	verify := f.do(t, http.MethodPost, "/v1/auth/mfa/verify", resp.Token, mfaVerifyRequest{Code: code})
	if verify.Code != http.StatusOK {
		t.Fatalf("verify = %d: %s", verify.Code, verify.Body.String())
	}

	after := f.do(t, http.MethodPost, "/v1/session/activity", resp.Token, nil)
	if after.Code != http.StatusOK {
		t.Fatalf("activity after verification = %d: %s", after.Code, after.Body.String())
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t, "p-1", "kim@example.com", auth.RoleStandardUser)

	wrongPassword := f.do(t, http.MethodPost, "/v1/auth/login", "",
		loginRequest{Email: "kim@example.com", Password: "wrong"})
	unknownEmail := f.do(t, http.MethodPost, "/v1/auth/login", "",
		loginRequest{Email: "ghost@example.com", Password: testPassword})

	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("codes = %d/%d, want 401/401", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("bodies differ: %s vs %s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/session", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d, want 401", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/v1/session", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", rec.Code)
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s = %d, want 200", path, rec.Code)
		}
	}
}

func TestEventListingRequiresAuditPermission(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.seed(t, "p-admin", "admin@example.com", auth.RoleAdministrator)
	f.seed(t, "p-user", "kim@example.com", auth.RoleStandardUser)

	adminLogin := f.login(t, "admin@example.com")
	userLogin := f.login(t, "kim@example.com")

	denied := f.do(t, http.MethodGet, "/v1/admin/events?principal_id="+admin.ID, userLogin.Token, nil)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("non-admin listing = %d, want 403", denied.Code)
	}

	allowed := f.do(t, http.MethodGet, "/v1/admin/events?principal_id="+admin.ID, adminLogin.Token, nil)
	if allowed.Code != http.StatusOK {
		t.Fatalf("admin listing = %d: %s", allowed.Code, allowed.Body.String())
	}
	var payload struct {
		Events []*audit.SecurityEvent `json:"events"`
	}
	if err := json.Unmarshal(allowed.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	found := false
	for _, e := range payload.Events {
		if e.Type == audit.EventLoginSuccess {
			found = true
		}
	}
	if !found {
		t.Fatalf("login event missing from trail: %+v", payload.Events)
	}
}
