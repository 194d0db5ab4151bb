package auth

import (
	"context"
	"database/sql"

	"pennywise.app/internal/ids"
)

var _ PrincipalStore = (*PGStore)(nil)

// PGStore implements PrincipalStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const principalColumns = `id, email, role, permissions, status, mfa_enabled,
	coalesce(mfa_secret,''), password_hash, password_changed_at, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into principals(id, email, role, permissions, status, mfa_enabled, mfa_secret, password_hash, password_changed_at)
		 values($1,$2,$3,$4,$5,$6,nullif($7,''),$8,$9)`,
		p.ID, normalizeEmail(p.Email), p.Role, encodePermissions(p.StoredPermissions),
		p.Status, p.MFAEnabled, p.MFASecret, p.PasswordHash, p.PasswordChangedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id=$1`, id)
	return scanPrincipal(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email=$1`, normalizeEmail(email))
	return scanPrincipal(row)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status AccountStatus) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set status=$2, updated_at=now() where id=$1`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdateRole(ctx context.Context, id string, role Role, perms []Permission) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set role=$2, permissions=$3, updated_at=now() where id=$1`,
		id, role, encodePermissions(perms))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set password_hash=$2, password_changed_at=now(), updated_at=now() where id=$1`,
		id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set mfa_enabled=$2, mfa_secret=nullif($3,''), updated_at=now() where id=$1`,
		id, enabled, secret)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var (
		p     Principal
		perms []byte
	)
	err := row.Scan(&p.ID, &p.Email, &p.Role, &perms, &p.Status, &p.MFAEnabled,
		&p.MFASecret, &p.PasswordHash, &p.PasswordChangedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.StoredPermissions = decodePermissions(perms)
	return &p, nil
}
