package dialog

import (
	"sync"
	"time"
)

// Handle identifies one armed timeout. The zero Handle means "nothing armed".
type Handle struct {
	UserID string
	Seq    uint64
}

// IsZero reports whether h refers to no timer.
func (h Handle) IsZero() bool { return h.Seq == 0 }

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f once after d.
type AfterFunc func(d time.Duration, f func()) Timer

type scheduled struct {
	handle Handle
	timer  Timer
}

// Scheduler keeps at most one pending timeout per user.
type Scheduler struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]scheduled
	after  AfterFunc
}

// NewScheduler builds a Scheduler backed by time.AfterFunc.
func NewScheduler() *Scheduler {
	return NewSchedulerWithTimers(func(d time.Duration, f func()) Timer {
		return time.AfterFunc(d, f)
	})
}

// NewSchedulerWithTimers builds a Scheduler using a custom timer factory.
func NewSchedulerWithTimers(after AfterFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[string]scheduled),
		after:  after,
	}
}

// Arm cancels any timer pending for userID and installs a new one.
// onExpire receives the handle that fired; it runs on its own goroutine and is
// never called for a handle that was cancelled or replaced before firing.
func (s *Scheduler) Arm(userID string, d time.Duration, onExpire func(Handle)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[userID]; ok {
		prev.timer.Stop()
		delete(s.timers, userID)
	}

	s.seq++
	h := Handle{UserID: userID, Seq: s.seq}
	t := s.after(d, func() { s.fire(h, onExpire) })
	s.timers[userID] = scheduled{handle: h, timer: t}
	return h
}

// Cancel stops the pending timer for userID. It is a no-op when nothing is armed.
func (s *Scheduler) Cancel(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.timers[userID]
	if !ok {
		return false
	}
	prev.timer.Stop()
	delete(s.timers, userID)
	return true
}

// Pending returns the live handle for userID, if any.
func (s *Scheduler) Pending(userID string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[userID]
	return cur.handle, ok
}

// Len reports the number of live timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.timers {
		cur.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(h Handle, onExpire func(Handle)) {
	s.mu.Lock()
	cur, ok := s.timers[h.UserID]
	if !ok || cur.handle != h {
		// Stop raced with the timer goroutine; the newer state wins.
		s.mu.Unlock()
		return
	}
	delete(s.timers, h.UserID)
	s.mu.Unlock()

	if onExpire != nil {
		onExpire(h)
	}
}
