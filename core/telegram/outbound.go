package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/m3rciful/menubot/core/dialog"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ErrNotStarted is returned when sending before the bot is bound.
var ErrNotStarted = errors.New("telegram: bot not started")

// MessageSender is the subset of *tele.Bot used for outbound text.
type MessageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Enqueuer runs jobs asynchronously in per-key order.
type Enqueuer interface {
	Enqueue(ctx context.Context, key, action string, run func(context.Context) error) error
}

type senderBox struct{ MessageSender }

// Outbound delivers dialog replies to Telegram chats through the dispatcher.
// It implements dialog.Sender for the "tg" transport.
type Outbound struct {
	bot  atomic.Pointer[senderBox]
	jobs Enqueuer
}

// NewOutbound creates an unbound sender; Bind must be called once the bot exists.
func NewOutbound(jobs Enqueuer) *Outbound {
	return &Outbound{jobs: jobs}
}

// Bind attaches the bot used for delivery. Passing nil unbinds it.
func (o *Outbound) Bind(bot MessageSender) {
	if bot == nil {
		o.bot.Store(nil)
		return
	}
	o.bot.Store(&senderBox{bot})
}

// Send queues text for the chat encoded in recipientID. Replies are plain
// text; option texts are sent exactly as written in the menu.
func (o *Outbound) Send(ctx context.Context, recipientID, text string) error {
	chatID, ok := tghelpers.ChatIDFromSession(recipientID)
	if !ok {
		return fmt.Errorf("telegram: bad recipient %q: %w", recipientID, dialog.ErrNoRoute)
	}
	run := func(context.Context) error {
		box := o.bot.Load()
		if box == nil {
			return ErrNotStarted
		}
		_, err := box.Send(tele.ChatID(chatID), text)
		return err
	}
	if o.jobs == nil {
		return run(ctx)
	}
	return o.jobs.Enqueue(ctx, recipientID, "tg.send", run)
}
