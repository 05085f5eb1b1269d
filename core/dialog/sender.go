package dialog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoRoute is returned when no outbound adapter serves a recipient's transport.
var ErrNoRoute = errors.New("dialog: no sender for recipient")

// Sender delivers text to a recipient. Implementations must not block on the
// network; the engine calls Send while holding the recipient's session lock.
type Sender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, recipientID, text string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, recipientID, text string) error {
	return f(ctx, recipientID, text)
}

// UserID namespaces a transport-local identifier, e.g. UserID("tg", "42") == "tg:42".
func UserID(transport, localID string) string {
	return transport + ":" + localID
}

// SplitUserID is the inverse of UserID.
func SplitUserID(userID string) (transport, localID string, ok bool) {
	transport, localID, ok = strings.Cut(userID, ":")
	if !ok || transport == "" || localID == "" {
		return "", "", false
	}
	return transport, localID, true
}

// SenderMux routes outbound messages to the adapter registered for the
// recipient's transport prefix.
type SenderMux struct {
	mu     sync.RWMutex
	routes map[string]Sender
}

// NewSenderMux returns an empty mux.
func NewSenderMux() *SenderMux {
	return &SenderMux{routes: make(map[string]Sender)}
}

// Handle registers s for user ids starting with transport + ":".
func (m *SenderMux) Handle(transport string, s Sender) {
	if transport == "" || s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[transport] = s
}

// Transports lists registered prefixes.
func (m *SenderMux) Transports() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.routes))
	for k := range m.routes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Send implements Sender.
func (m *SenderMux) Send(ctx context.Context, recipientID, text string) error {
	transport, _, ok := SplitUserID(recipientID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoRoute, recipientID)
	}
	m.mu.RLock()
	s, ok := m.routes[transport]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoRoute, recipientID)
	}
	return s.Send(ctx, recipientID, text)
}
