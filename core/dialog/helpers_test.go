package dialog

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sent struct {
	to   string
	text string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (r *recordingSender) Send(_ context.Context, to, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{to: to, text: text})
	return r.err
}

func (r *recordingSender) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordingSender) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatal("expected at least one outbound message")
	}
	return r.msgs[len(r.msgs)-1].text
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped && !m.fired
	m.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) after(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs timer i even if it was stopped, mimicking a timer goroutine that
// was already scheduled when Stop was called.
func (c *manualClock) fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	t.fired = true
	c.mu.Unlock()
	t.f()
}

func (c *manualClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fixture struct {
	engine *Engine
	sender *recordingSender
	clock  *manualClock
	store  Store
	trs    []Transition
	mu     sync.Mutex
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		sender: &recordingSender{},
		clock:  &manualClock{},
		store:  NewMemoryStore(),
	}
	opts := Options{
		Store:     f.store,
		Sender:    f.sender,
		Scheduler: NewSchedulerWithTimers(f.clock.after),
		Observers: []Observer{ObserverFunc(func(_ context.Context, tr Transition) {
			f.mu.Lock()
			f.trs = append(f.trs, tr)
			f.mu.Unlock()
		})},
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = e
	return f
}

func (f *fixture) say(t *testing.T, user, text string) Transition {
	t.Helper()
	tr, err := f.engine.HandleMessage(context.Background(), Inbound{SenderID: user, Text: text})
	if err != nil {
		t.Fatalf("handle %q: %v", text, err)
	}
	return tr
}

func (f *fixture) state(t *testing.T, user string) State {
	t.Helper()
	s, ok := f.store.Get(user)
	if !ok {
		t.Fatalf("no session for %s", user)
	}
	return s.State
}

func (f *fixture) observed() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transition(nil), f.trs...)
}
