// Package journal persists committed dialog transitions to postgres.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/logger"
)

// Enqueuer runs jobs asynchronously in per-key order.
type Enqueuer interface {
	Enqueue(ctx context.Context, key, action string, run func(context.Context) error) error
}

// Record is one row of dialog_transitions.
type Record struct {
	ID         int64     `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	FromState  string    `db:"from_state" json:"from"`
	ToState    string    `db:"to_state" json:"to"`
	Input      string    `db:"input" json:"input"`
	Action     string    `db:"action" json:"action"`
	Reply      string    `db:"reply" json:"reply,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// FromTransition converts an engine transition into a row.
func FromTransition(t dialog.Transition) Record {
	return Record{
		UserID:     t.UserID,
		FromState:  t.From.String(),
		ToState:    t.To.String(),
		Input:      t.Input,
		Action:     string(t.Action),
		Reply:      t.Reply,
		OccurredAt: t.At.UTC(),
	}
}

const (
	insertSQL = `INSERT INTO dialog_transitions
	(user_id, from_state, to_state, input, action, reply, occurred_at)
	VALUES (:user_id, :from_state, :to_state, :input, :action, :reply, :occurred_at)`

	recentSQL = `SELECT id, user_id, from_state, to_state, input, action, reply, occurred_at
	FROM dialog_transitions
	WHERE user_id = $1
	ORDER BY occurred_at DESC, id DESC
	LIMIT $2`

	// MaxRecent caps Recent's limit.
	MaxRecent = 200
)

// Journal writes transitions through the dispatcher and reads them back for the ops API.
type Journal struct {
	db    *sqlx.DB
	queue Enqueuer
}

// New binds a journal to db; writes go through queue.
func New(db *sqlx.DB, queue Enqueuer) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: nil db")
	}
	if queue == nil {
		return nil, errors.New("journal: nil queue")
	}
	return &Journal{db: db, queue: queue}, nil
}

// ObserveTransition queues an insert. Ignored group traffic is not journaled.
func (j *Journal) ObserveTransition(ctx context.Context, t dialog.Transition) {
	if t.Action == dialog.ActionIgnored {
		return
	}
	rec := FromTransition(t)
	err := j.queue.Enqueue(ctx, rec.UserID, "journal.insert", func(ctx context.Context) error {
		return j.Insert(ctx, rec)
	})
	if err != nil {
		logger.DB.Warn("journal enqueue failed",
			slog.String("event", "journal.enqueue"),
			slog.String("user_id", rec.UserID),
			slog.String("action", rec.Action),
			slog.String("err", err.Error()),
		)
	}
}

// Insert writes one record synchronously.
func (j *Journal) Insert(ctx context.Context, rec Record) error {
	if _, err := j.db.NamedExecContext(ctx, insertSQL, rec); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Recent returns the newest transitions of userID, newest first.
func (j *Journal) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	limit = clampLimit(limit)
	var out []Record
	if err := j.db.SelectContext(ctx, &out, recentSQL, userID, limit); err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > MaxRecent:
		return MaxRecent
	}
	return limit
}
