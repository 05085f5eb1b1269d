package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m3rciful/menubot/core/logger"
)

// DefaultHandoffTimeout is how long a session stays parked after a hand-off
// request before it returns to the menu on its own.
const DefaultHandoffTimeout = 30 * time.Minute

// CloseReply selects what is sent when a parked session is closed by the user.
type CloseReply string

const (
	// CloseReplyMenu resends the full menu.
	CloseReplyMenu CloseReply = "menu"
	// CloseReplyClosing sends the close option's text.
	CloseReplyClosing CloseReply = "closing"
)

// Action names the branch of the transition table that handled an event.
type Action string

const (
	// ActionIgnored marks group messages; no session is touched.
	ActionIgnored Action = "ignored"
	// ActionWelcome is the first message of a new session.
	ActionWelcome Action = "welcome"
	// ActionHandoff parks the session and arms the hand-off timer.
	ActionHandoff Action = "handoff"
	// ActionRelease is the close token received while waiting for an agent.
	ActionRelease Action = "release"
	// ActionSilent is any other input while waiting for an agent.
	ActionSilent Action = "silent"
	// ActionAnswer replies with a catalog option.
	ActionAnswer Action = "answer"
	// ActionClose is the close token outside a hand-off.
	ActionClose Action = "close"
	// ActionMenu re-sends the menu for unknown input.
	ActionMenu Action = "menu"
	// ActionExpire is the hand-off timer firing.
	ActionExpire Action = "expire"
)

// Inbound is one message delivered by a transport.
type Inbound struct {
	SenderID string
	Text     string
	IsGroup  bool
}

// Transition describes the effect of one processed event.
type Transition struct {
	UserID string
	From   State
	To     State
	Input  string
	Action Action
	// Reply is the text handed to the Sender; empty when nothing was sent.
	Reply string
	At    time.Time
}

// Observer is notified of every committed transition. Implementations must
// return quickly; they run under the user's session lock.
type Observer interface {
	ObserveTransition(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

// ObserveTransition calls f.
func (f ObserverFunc) ObserveTransition(ctx context.Context, t Transition) { f(ctx, t) }

// Options configure an Engine.
type Options struct {
	Store     Store
	Catalog   *Catalog
	Scheduler *Scheduler
	Sender    Sender

	HandoffTimeout    time.Duration
	HandoffTokens     []string
	CloseToken        string
	HandoffCloseReply CloseReply

	Observers []Observer
	Now       func() time.Time
}

// Engine is the per-user dialog state machine.
type Engine struct {
	store      Store
	scheduler  *Scheduler
	sender     Sender
	catalog    atomic.Pointer[Catalog]
	handoff    map[string]struct{}
	closeToken string
	timeout    time.Duration
	closeReply CloseReply
	observers  []Observer
	now        func() time.Time
}

// NewEngine validates options and fills defaults.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Sender == nil {
		return nil, errors.New("dialog: sender is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewScheduler()
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.HandoffTimeout <= 0 {
		opts.HandoffTimeout = DefaultHandoffTimeout
	}
	if len(opts.HandoffTokens) == 0 {
		opts.HandoffTokens = []string{"1", "8"}
	}
	if strings.TrimSpace(opts.CloseToken) == "" {
		opts.CloseToken = "10"
	}
	switch opts.HandoffCloseReply {
	case "":
		opts.HandoffCloseReply = CloseReplyMenu
	case CloseReplyMenu, CloseReplyClosing:
	default:
		return nil, fmt.Errorf("dialog: invalid handoff close reply %q", opts.HandoffCloseReply)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		store:      opts.Store,
		scheduler:  opts.Scheduler,
		sender:     opts.Sender,
		handoff:    make(map[string]struct{}, len(opts.HandoffTokens)),
		closeToken: strings.TrimSpace(opts.CloseToken),
		timeout:    opts.HandoffTimeout,
		closeReply: opts.HandoffCloseReply,
		observers:  opts.Observers,
		now:        opts.Now,
	}
	for _, tok := range opts.HandoffTokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if tok == e.closeToken {
			return nil, fmt.Errorf("dialog: token %q cannot both hand off and close", tok)
		}
		e.handoff[tok] = struct{}{}
	}
	e.catalog.Store(opts.Catalog)
	return e, nil
}

// Catalog returns the catalog currently in use.
func (e *Engine) Catalog() *Catalog { return e.catalog.Load() }

// SetCatalog swaps the catalog; sessions and timers are untouched.
func (e *Engine) SetCatalog(c *Catalog) {
	if c != nil {
		e.catalog.Store(c)
	}
}

// Store exposes the session store for read-only callers.
func (e *Engine) Store() Store { return e.store }

// Scheduler exposes the timeout scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// HandleMessage applies one inbound message to the sender's session.
// Group messages are dropped without touching the store.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) (Transition, error) {
	if in.IsGroup {
		logger.Debug(ctx, "dialog", "dialog.ignored",
			slog.String("user_id", in.SenderID),
			slog.String("cause", "group"),
		)
		return Transition{UserID: in.SenderID, Action: ActionIgnored}, nil
	}
	if strings.TrimSpace(in.SenderID) == "" {
		return Transition{}, errors.New("dialog: empty sender id")
	}

	userID := in.SenderID
	token := strings.TrimSpace(in.Text)
	e.store.GetOrCreate(userID)

	var tr Transition
	err := e.store.Update(userID, func(s *Session) {
		tr = e.apply(ctx, s, token)
		e.notify(ctx, tr)
	})
	if err != nil {
		return Transition{}, fmt.Errorf("dialog: update session: %w", err)
	}
	return tr, nil
}

func (e *Engine) apply(ctx context.Context, s *Session, token string) Transition {
	now := e.now()
	catalog := e.Catalog()
	tr := Transition{UserID: s.UserID, From: s.State, Input: token, At: now}
	s.LastMessageTime = now

	switch {
	case s.State == StateNew:
		s.State = StateMenuReady
		tr.Action = ActionWelcome
		tr.Reply = catalog.Welcome()

	case s.State == StateAwaitingAgent:
		if token != e.closeToken {
			tr.Action = ActionSilent
			break
		}
		e.scheduler.Cancel(s.UserID)
		s.PendingTimeout = Handle{}
		s.State = StateMenuReady
		tr.Action = ActionRelease
		tr.Reply = catalog.Welcome()
		if e.closeReply == CloseReplyClosing {
			if text, ok := catalog.Lookup(e.closeToken); ok {
				tr.Reply = text
			}
		}

	case e.isHandoff(token):
		text, ok := catalog.Lookup(token)
		if !ok {
			text = catalog.Welcome()
		}
		s.PendingTimeout = e.scheduler.Arm(s.UserID, e.timeout, e.expire)
		s.State = StateAwaitingAgent
		tr.Action = ActionHandoff
		tr.Reply = text

	case token == e.closeToken:
		// Idempotent: a MENU_READY session has nothing pending, but clear it anyway.
		if s.HasPendingTimeout() {
			e.scheduler.Cancel(s.UserID)
			s.PendingTimeout = Handle{}
		}
		tr.Action = ActionClose
		text, ok := catalog.Lookup(token)
		if !ok {
			text = catalog.Welcome()
		}
		tr.Reply = text

	default:
		if text, ok := catalog.Lookup(token); ok {
			tr.Action = ActionAnswer
			tr.Reply = text
		} else {
			tr.Action = ActionMenu
			tr.Reply = catalog.Welcome()
		}
	}

	tr.To = s.State
	if tr.Reply != "" {
		e.send(ctx, s.UserID, tr.Reply)
	}
	logger.Debug(ctx, "dialog", "dialog.transition",
		slog.String("user_id", s.UserID),
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)),
		slog.String("op", string(tr.Action)),
		slog.String("payload", logger.SanitizeLimit(token, 64)),
	)
	return tr
}

func (e *Engine) isHandoff(token string) bool {
	_, ok := e.handoff[token]
	return ok
}

func (e *Engine) send(ctx context.Context, userID, text string) {
	if err := e.sender.Send(ctx, userID, text); err != nil {
		logger.Warn(ctx, "dialog", "dialog.send_failed",
			slog.String("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// expire runs on the scheduler's goroutine once the hand-off window elapses.
func (e *Engine) expire(h Handle) {
	ctx := logger.WithUserID(context.Background(), h.UserID)
	err := e.store.Update(h.UserID, func(s *Session) {
		if s.PendingTimeout != h {
			logger.Debug(ctx, "dialog", "dialog.expire",
				slog.String("status", "skip"),
				slog.String("cause", "stale_handle"),
			)
			return
		}
		tr := Transition{UserID: s.UserID, From: s.State, Action: ActionExpire, At: e.now()}
		s.PendingTimeout = Handle{}
		if s.State == StateAwaitingAgent {
			s.State = StateMenuReady
		}
		tr.To = s.State
		logger.Info(ctx, "dialog", "dialog.expire",
			slog.String("status", "ok"),
			slog.String("from", string(tr.From)),
			slog.String("to", string(tr.To)),
		)
		e.notify(ctx, tr)
	})
	if err != nil {
		logger.Error(ctx, "dialog", "dialog.expire",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, tr Transition) {
	for _, o := range e.observers {
		if o != nil {
			o.ObserveTransition(ctx, tr)
		}
	}
}
