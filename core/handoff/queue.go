// Package handoff announces human-attendant hand-offs on a Redis list so an
// agent console can pick them up.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/logger"
)

// Event types pushed to the queue.
const (
	EventRequested = "handoff.requested"
	EventReleased  = "handoff.released"
	EventExpired   = "handoff.expired"
)

// DefaultQueue is the Redis list receiving events.
const DefaultQueue = "queue:handoffs"

// Enqueuer runs jobs asynchronously in per-key order.
type Enqueuer interface {
	Enqueue(ctx context.Context, key, action string, run func(context.Context) error) error
}

// Client is the subset of the Redis API the queue needs.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// Event is the JSON envelope pushed for each hand-off change.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	Input  string    `json:"input,omitempty"`
	At     time.Time `json:"at"`
	// ExpiresAt is set on requests: the moment the session returns to the menu unattended.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Connect creates a Redis client and verifies connectivity.
func Connect(ctx context.Context, cfg coreconfig.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		logger.Redis.Error("redis ping failed",
			slog.String("event", "redis.connect"),
			slog.String("addr", cfg.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Redis.Info("redis connected",
		slog.String("event", "redis.connect"),
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return rdb, nil
}

// Queue is a dialog observer publishing hand-off events.
type Queue struct {
	client  Client
	key     string
	jobs    Enqueuer
	timeout time.Duration
	newID   func() string
}

// NewQueue builds a queue pushing to key. timeout is the hand-off window used to stamp ExpiresAt.
func NewQueue(client Client, key string, jobs Enqueuer, timeout time.Duration) (*Queue, error) {
	if client == nil {
		return nil, errors.New("handoff: nil redis client")
	}
	if jobs == nil {
		return nil, errors.New("handoff: nil job queue")
	}
	if key == "" {
		key = DefaultQueue
	}
	return &Queue{client: client, key: key, jobs: jobs, timeout: timeout, newID: uuid.NewString}, nil
}

// Key returns the Redis list name.
func (q *Queue) Key() string { return q.key }

// EventFor maps a transition to a hand-off event; ok is false for transitions
// that do not enter or leave AWAITING_AGENT.
func (q *Queue) EventFor(t dialog.Transition) (Event, bool) {
	ev := Event{UserID: t.UserID, Input: t.Input, At: t.At.UTC()}
	switch {
	case t.Action == dialog.ActionHandoff:
		ev.Type = EventRequested
		if q.timeout > 0 {
			exp := ev.At.Add(q.timeout)
			ev.ExpiresAt = &exp
		}
	case t.Action == dialog.ActionRelease:
		ev.Type = EventReleased
	case t.Action == dialog.ActionExpire:
		ev.Type = EventExpired
		ev.Input = ""
	default:
		return Event{}, false
	}
	ev.ID = q.newID()
	return ev, true
}

// ObserveTransition queues a push for hand-off related transitions.
func (q *Queue) ObserveTransition(ctx context.Context, t dialog.Transition) {
	ev, ok := q.EventFor(t)
	if !ok {
		return
	}
	err := q.jobs.Enqueue(ctx, ev.UserID, ev.Type, func(ctx context.Context) error {
		return q.Push(ctx, ev)
	})
	if err != nil {
		logger.Redis.Warn("handoff enqueue failed",
			slog.String("event", "handoff.enqueue"),
			slog.String("type", ev.Type),
			slog.String("user_id", ev.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// Push serializes ev and prepends it to the list.
func (q *Queue) Push(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("handoff marshal: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("handoff push: %w", err)
	}
	logger.Redis.Debug("handoff pushed",
		slog.String("event", ev.Type),
		slog.String("queue", q.key),
		slog.String("user_id", ev.UserID),
	)
	return nil
}

// Peek returns up to n of the newest events without consuming them.
func (q *Queue) Peek(ctx context.Context, n int64) ([]Event, int64, error) {
	if n <= 0 {
		n = 20
	}
	total, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("handoff len: %w", err)
	}
	raw, err := q.client.LRange(ctx, q.key, 0, n-1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("handoff range: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, total, nil
}
