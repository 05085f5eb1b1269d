package helpers

import (
	"context"

	"github.com/m3rciful/menubot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

func storeContext(c tele.Context, ctx context.Context) {
	c.Set(contextKey, ctx)
}

func storedContext(c tele.Context) (context.Context, bool) {
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the logging context for the update, creating and
// caching it on first use. It carries the rid, update and chat ids and the
// dialog user id.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := storedContext(c); ok {
		return cached
	}

	upd := c.Update()
	var chatID, senderID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		senderID = user.ID
	}
	rid := logger.BuildRID(upd.ID, chatID, senderID)
	c.Set("rid", rid)

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, chatID)
	ctx = logger.WithUserID(ctx, SessionID(c))
	ctx = logger.WithLogger(ctx, logger.TG)
	storeContext(c, ctx)
	return ctx
}

// SessionID returns the dialog user id ("tg:<chatID>") for the update's chat.
func SessionID(c tele.Context) string {
	if c == nil {
		return ""
	}
	return ChatSessionID(c.Chat())
}

// WithHandler tags the update's context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	storeContext(c, ctx)
	return ctx
}
