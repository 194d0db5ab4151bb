package audit

import (
	"context"
	"database/sql"
	"encoding/json"
)

var _ EventStore = (*PGStore)(nil)

// PGStore implements EventStore on PostgreSQL. The table is insert-only;
// there is deliberately no update or delete path.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, event *SecurityEvent) error {
	details, _ := json.Marshal(event.Details)
	_, err := s.db.ExecContext(ctx,
		`insert into security_events(id, event_type, principal_id, session_id, occurred_at, success, risk_level, details)
		 values($1,$2,nullif($3,''),nullif($4,''),$5,$6,$7,$8)`,
		event.ID, event.Type, event.PrincipalID, event.SessionID,
		event.OccurredAt, event.Success, event.RiskLevel, details,
	)
	return err
}

func (s *PGStore) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, event_type, coalesce(principal_id,''), coalesce(session_id,''), occurred_at, success, risk_level, details
		 from security_events where principal_id=$1 order by occurred_at asc limit $2`,
		principalID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PGStore) ListBySession(ctx context.Context, sessionID string) ([]*SecurityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, event_type, coalesce(principal_id,''), coalesce(session_id,''), occurred_at, success, risk_level, details
		 from security_events where session_id=$1 order by occurred_at asc`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*SecurityEvent, error) {
	var out []*SecurityEvent
	for rows.Next() {
		var (
			e       SecurityEvent
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.PrincipalID, &e.SessionID, &e.OccurredAt, &e.Success, &e.RiskLevel, &details); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
