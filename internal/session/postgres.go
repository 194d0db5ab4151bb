package session

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The store is single-writer: the
// lifecycle manager serializes logins per principal in process, so the
// concurrency check needs no row locks here.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const sessionColumns = `id, principal_id, login_time, last_activity_time, mfa_verified, state, coalesce(reason,'')`

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, principal_id, login_time, last_activity_time, mfa_verified, state)
		 values($1,$2,$3,$4,$5,$6)`,
		sess.ID, sess.PrincipalID, sess.LoginTime, sess.LastActivityTime, sess.MFAVerified, sess.State,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id)
	return scanSession(row)
}

// UpdateActivity keeps the latest timestamp: the greatest() guard makes
// out-of-order writes commutative.
func (s *PGStore) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set last_activity_time = greatest(last_activity_time, $2) where id=$1`,
		id, at)
	if err != nil {
		return err
	}
	return requireSessionRow(res)
}

func (s *PGStore) SetMFAVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set mfa_verified=true where id=$1`, id)
	if err != nil {
		return err
	}
	return requireSessionRow(res)
}

func (s *PGStore) SetState(ctx context.Context, id string, state State, reason TerminateReason) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set state=$2, reason=nullif($3,'') where id=$1`,
		id, state, reason)
	if err != nil {
		return err
	}
	return requireSessionRow(res)
}

func (s *PGStore) LiveByPrincipal(ctx context.Context, principalID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions
		 where principal_id=$1 and state in ('active','warning')`,
		principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *PGStore) ListLive(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where state in ('active','warning')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func requireSessionRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionInto(scanner rowScanner) (*Session, error) {
	var sess Session
	err := scanner.Scan(&sess.ID, &sess.PrincipalID, &sess.LoginTime, &sess.LastActivityTime,
		&sess.MFAVerified, &sess.State, &sess.Reason)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	sess, err := scanSessionInto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		sess, err := scanSessionInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
