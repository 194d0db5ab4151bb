package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"pennywise.app/internal/audit"
)

func testAuthenticator(t *testing.T, now func() time.Time) (*Authenticator, *MemoryPrincipalStore, *audit.MemoryStore) {
	t.Helper()
	store := NewMemoryPrincipalStore()
	events := audit.NewMemoryStore()
	recorder := audit.NewRecorder(events, audit.WithClock(now))
	a, err := NewAuthenticator(store, recorder, WithAuthClock(now))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a, store, events
}

func seedPrincipal(t *testing.T, store *MemoryPrincipalStore, email, password string) *Principal {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	p := &Principal{
		ID:                "p-1",
		Email:             email,
		Role:              RoleStandardUser,
		Status:            StatusActive,
		PasswordHash:      hash,
		PasswordChangedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func TestVerifyCredentialsSuccess(t *testing.T) {
	a, store, events := testAuthenticator(t, time.Now)
	seedPrincipal(t, store, "kim@example.com", "s3cret-pw")

	p, err := a.VerifyCredentials(context.Background(), "Kim@Example.com", "s3cret-pw")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if p == nil || p.Email != "kim@example.com" {
		t.Fatalf("unexpected principal: %+v", p)
	}

	got, err := events.ListByPrincipal(context.Background(), p.ID, 0)
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("successful login appended %d events, want 0", len(got))
	}
}

func TestVerifyCredentialsMissingInput(t *testing.T) {
	a, _, events := testAuthenticator(t, time.Now)

	p, err := a.VerifyCredentials(context.Background(), "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if p != nil {
		t.Fatalf("expected nil principal, got %+v", p)
	}

	got, err := events.ListByPrincipal(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("appended %d events, want exactly 1", len(got))
	}
	if got[0].Type != audit.EventLoginFailure {
		t.Fatalf("event type = %s, want %s", got[0].Type, audit.EventLoginFailure)
	}
	if got[0].RiskLevel != audit.RiskHigh {
		t.Fatalf("risk = %s, want %s", got[0].RiskLevel, audit.RiskHigh)
	}
	if got[0].Success {
		t.Fatal("failure event marked successful")
	}
}

func TestVerifyCredentialsUnknownAccount(t *testing.T) {
	a, _, events := testAuthenticator(t, time.Now)

	_, err := a.VerifyCredentials(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	got, err := events.ListByPrincipal(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(got) != 1 || got[0].Type != audit.EventLoginFailure {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[0].Details["email"] != "ghost@example.com" {
		t.Fatalf("failure event missing email detail: %+v", got[0].Details)
	}
}

func TestVerifyCredentialsWrongPassword(t *testing.T) {
	a, store, events := testAuthenticator(t, time.Now)
	p := seedPrincipal(t, store, "kim@example.com", "s3cret-pw")

	_, err := a.VerifyCredentials(context.Background(), "kim@example.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	got, err := events.ListByPrincipal(context.Background(), p.ID, 0)
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(got) != 1 || got[0].Type != audit.EventLoginFailure {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[0].Details["reason"] != "credential mismatch" {
		t.Fatalf("reason = %q", got[0].Details["reason"])
	}
}

func TestVerifyCredentialsInactiveAccount(t *testing.T) {
	a, store, _ := testAuthenticator(t, time.Now)
	p := seedPrincipal(t, store, "kim@example.com", "s3cret-pw")
	if err := store.UpdateStatus(context.Background(), p.ID, StatusSuspended); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	_, err := a.VerifyCredentials(context.Background(), "kim@example.com", "s3cret-pw")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	a, store, events := testAuthenticator(t, time.Now)
	p := seedPrincipal(t, store, "kim@example.com", "s3cret-pw")

	max := a.Policies().For(LevelLow).MaxFailedAttempts
	for i := 0; i < max; i++ {
		if _, err := a.VerifyCredentials(context.Background(), "kim@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: err = %v, want ErrUnauthorized", i+1, err)
		}
	}

	stored, err := store.Find(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.Status != StatusLocked {
		t.Fatalf("status = %s, want %s", stored.Status, StatusLocked)
	}

	got, err := events.ListByPrincipal(context.Background(), p.ID, 0)
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	var locked *audit.SecurityEvent
	for _, e := range got {
		if e.Type == audit.EventAccountLocked {
			locked = e
		}
	}
	if locked == nil {
		t.Fatal("no AccountLocked event appended")
	}
	if locked.RiskLevel != audit.RiskCritical {
		t.Fatalf("lock risk = %s, want %s", locked.RiskLevel, audit.RiskCritical)
	}

	// Further attempts bounce off the tracker before touching the password.
	if _, err := a.VerifyCredentials(context.Background(), "kim@example.com", "s3cret-pw"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

func TestLockoutExpiresWithClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a, store, _ := testAuthenticator(t, clock)
	p := seedPrincipal(t, store, "kim@example.com", "s3cret-pw")

	pol := a.Policies().For(LevelLow)
	for i := 0; i < pol.MaxFailedAttempts; i++ {
		a.VerifyCredentials(context.Background(), "kim@example.com", "wrong")
	}
	if _, err := a.VerifyCredentials(context.Background(), "kim@example.com", "s3cret-pw"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}

	// The tracker unlocks after the lockout window; stored status needs an
	// operator or an unlock job, so flip it back here.
	now = now.Add(pol.LockoutDuration + time.Second)
	if err := store.UpdateStatus(context.Background(), p.ID, StatusActive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := a.VerifyCredentials(context.Background(), "kim@example.com", "s3cret-pw"); err != nil {
		t.Fatalf("login after lockout window: %v", err)
	}
}
