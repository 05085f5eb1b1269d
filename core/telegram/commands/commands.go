package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are hidden from the command menu and rejected for non-admins.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}
