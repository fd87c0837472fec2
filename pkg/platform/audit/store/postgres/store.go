package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "carbonledger/pkg/domain"
	audit "carbonledger/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL. The table is append-only; the
// registry never updates or deletes audit rows.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	facility_id BIGINT NOT NULL DEFAULT 0,
	event_id    BIGINT NOT NULL DEFAULT 0,
	amount      BIGINT NOT NULL DEFAULT 0,
	subject     TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_actor_idx ON audit_events (actor, occurred_at);
`

// EnsureSchema creates the audit table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	occurredAt := event.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, category, occurred_at, actor, action, facility_id, event_id, amount, subject, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(),
		string(category),
		occurredAt,
		event.Actor.String(),
		event.Action,
		int64(event.FacilityID),
		int64(event.EventID),
		int64(event.Amount),
		event.Subject.String(),
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByActor(ctx context.Context, actor id.Identity) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, occurred_at, actor, action, facility_id, event_id, amount, subject, request_id
		FROM audit_events
		WHERE actor = $1
		ORDER BY occurred_at`,
		actor.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event                       audit.Event
			category, actorCol, subject string
			facilityID, eventID, amount int64
		)
		if err := rows.Scan(&category, &event.Timestamp, &actorCol, &event.Action,
			&facilityID, &eventID, &amount, &subject, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Actor = id.Identity(actorCol)
		event.FacilityID = id.FacilityID(facilityID)
		event.EventID = id.EventID(eventID)
		event.Amount = uint64(amount)
		event.Subject = id.Identity(subject)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
