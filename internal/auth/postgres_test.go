package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func principalRows(p *Principal) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "role", "permissions", "status", "mfa_enabled",
		"mfa_secret", "password_hash", "password_changed_at", "created_at", "updated_at",
	}).AddRow(p.ID, p.Email, string(p.Role), encodePermissions(p.StoredPermissions),
		string(p.Status), p.MFAEnabled, p.MFASecret, p.PasswordHash,
		p.PasswordChangedAt, p.CreatedAt, p.UpdatedAt)
}

func TestPGStoreFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	want := &Principal{
		ID:                "p-1",
		Email:             "kim@example.com",
		Role:              RoleAnalyst,
		StoredPermissions: []Permission{PermReportsView},
		Status:            StatusActive,
		PasswordHash:      "$argon2id$...",
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	mock.ExpectQuery("(?s)select .* from principals where email=").
		WithArgs("kim@example.com").
		WillReturnRows(principalRows(want))

	store := NewPGStore(db)
	got, err := store.FindByEmail(context.Background(), "  Kim@Example.COM ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.ID != want.ID || got.Role != want.Role || got.Status != want.Status {
		t.Fatalf("unexpected principal: %+v", got)
	}
	if len(got.StoredPermissions) != 1 || got.StoredPermissions[0] != PermReportsView {
		t.Fatalf("permissions not decoded: %v", got.StoredPermissions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("(?s)select .* from principals where id=").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	store := NewPGStore(db)
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGStoreCreateGeneratesID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into principals").
		WithArgs(sqlmock.AnyArg(), "kim@example.com", "standard_user", sqlmock.AnyArg(),
			"active", false, "", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPGStore(db)
	p := &Principal{
		Email:             "Kim@Example.com",
		Role:              RoleStandardUser,
		Status:            StatusActive,
		PasswordHash:      "hash",
		PasswordChangedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("Create left the id empty")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreUpdateStatusMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update principals set status=").
		WithArgs("missing", "locked").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	if err := store.UpdateStatus(context.Background(), "missing", StatusLocked); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
