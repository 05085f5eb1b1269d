package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// StartCommand forwards /start into the dialog like any other message.
func StartCommand(d Dialog, description string) commands.Command {
	if description == "" {
		description = "Abrir o menu de atendimento"
	}
	return commands.Command{
		Handler:     DialogHandler(d),
		Description: description,
	}
}

// Stats is an operator snapshot of the running bot.
type Stats struct {
	Sessions      map[dialog.State]int
	PendingTimers int
	QueuePending  int
	JobFailures   uint64
}

// FormatStats renders stats as a short plain-text report.
func FormatStats(s Stats) string {
	var b strings.Builder
	total := 0
	states := make([]string, 0, len(s.Sessions))
	for st, n := range s.Sessions {
		total += n
		states = append(states, string(st))
	}
	sort.Strings(states)
	fmt.Fprintf(&b, "sessions: %d\n", total)
	for _, st := range states {
		fmt.Fprintf(&b, "  %s: %d\n", st, s.Sessions[dialog.State(st)])
	}
	fmt.Fprintf(&b, "pending timers: %d\n", s.PendingTimers)
	fmt.Fprintf(&b, "queued jobs: %d\n", s.QueuePending)
	fmt.Fprintf(&b, "failed jobs: %d", s.JobFailures)
	return b.String()
}

// StatsCommand replies to the admin with FormatStats(collect()).
func StatsCommand(collect func() Stats) commands.Command {
	return commands.Command{
		Handler: func(c tele.Context) error {
			return c.Send(FormatStats(collect()))
		},
		Description: "Estatísticas do bot",
		AdminOnly:   true,
		Hidden:      true,
	}
}
