package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/menubot/core/dialog"
	tg "github.com/m3rciful/menubot/core/telegram"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"
	"github.com/m3rciful/menubot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Dialog is the state machine fed by inbound chat messages.
type Dialog interface {
	HandleMessage(ctx context.Context, in dialog.Inbound) (dialog.Transition, error)
}

// DialogHandler turns a Telegram message into a dialog event. Group and
// channel chats are flagged so the dialog ignores them.
func DialogHandler(d Dialog) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		chat := c.Chat()
		if chat == nil {
			logHandled(c, "dialog", start, "skip", nil)
			return nil
		}

		ctx := tghelpers.WithHandler(c, "dialog")
		tr, err := d.HandleMessage(ctx, dialog.Inbound{
			SenderID: tghelpers.ChatSessionID(chat),
			Text:     c.Text(),
			IsGroup:  tghelpers.IsGroupChat(chat),
		})
		if err != nil {
			logHandled(c, "dialog", start, "", err)
			return err
		}

		status := ""
		if tr.Action == dialog.ActionIgnored {
			status = "skip"
		}
		extras := []slog.Attr{slog.String("action", string(tr.Action))}
		if tr.From != "" {
			extras = append(extras,
				slog.String("from", tr.From.String()),
				slog.String("to", tr.To.String()),
			)
		}
		logHandled(c, "dialog", start, status, nil, extras...)
		return nil
	}
}

// TextRoutes binds text, media and sticker messages to the dialog.
// Media captions count as text; media without caption is an empty message.
func TextRoutes(d Dialog) []tg.Route {
	h := middleware.RecoverMiddleware(middleware.LoggerMiddleware(DialogHandler(d)))
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: h},
		{Endpoint: tele.OnMedia, Handler: h},
		{Endpoint: tele.OnSticker, Handler: h},
	}
}
