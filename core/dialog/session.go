// Package dialog implements the menu-driven conversation state machine:
// the menu catalog, the per-user session store, the hand-off timeout
// scheduler and the engine that ties them to inbound and outbound messages.
package dialog

import "time"

// State identifies a step of the per-user conversation.
type State string

const (
	// StateNew marks a session that has not received the welcome menu yet.
	StateNew State = "new"
	// StateMenuReady is the default interactive state where menu options are answered.
	StateMenuReady State = "menu_ready"
	// StateAwaitingAgent parks the session after a hand-off request; only the close token is honoured.
	StateAwaitingAgent State = "awaiting_agent"
)

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

// Session is the conversational record of a single remote user.
type Session struct {
	UserID          string
	State           State
	CreatedAt       time.Time
	LastMessageTime time.Time
	// PendingTimeout is the hand-off expiry currently owned by the session; zero when none.
	PendingTimeout Handle
}

// HasPendingTimeout reports whether a hand-off expiry is armed for the session.
func (s Session) HasPendingTimeout() bool {
	return !s.PendingTimeout.IsZero()
}
