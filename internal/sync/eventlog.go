// Package syncx keeps an append-only log of state-changing operations so
// other sites can replay them.
package syncx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	TypeTranscriptAnalyzed = "TranscriptAnalyzed"
	TypeWeekSaved          = "WeekSaved"
	TypeRosterReplaced     = "RosterReplaced"
	TypeAliasesUpdated     = "AliasesUpdated"
	TypeSettingsUpdated    = "SettingsUpdated"
)

type Event struct {
	Seq       int64  `db:"seq" json:"seq"`
	ID        string `db:"id" json:"id"`
	Type      string `db:"typ" json:"type"`
	Key       string `db:"key" json:"key"`
	DataJSON  string `db:"data" json:"data"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// Appender is what writers depend on.
type Appender interface {
	Append(ctx context.Context, e Event) (Event, error)
}

type EventRepo struct{ db *sqlx.DB }

func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

// Append stores e, filling in ID and CreatedAt when they are empty, and
// returns the stored event.
func (r *EventRepo) Append(ctx context.Context, e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO event_log (id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5) RETURNING seq`,
		e.ID, e.Type, e.Key, e.DataJSON, e.CreatedAt).Scan(&e.Seq)
	if err != nil {
		return Event{}, errors.Wrap(err, "append event")
	}
	return e, nil
}

// Since returns up to limit events with seq > after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []Event
	err := r.db.SelectContext(ctx, &out,
		`SELECT seq, id, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return out, nil
}
