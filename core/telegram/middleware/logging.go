package middleware

import (
	"log/slog"

	"github.com/m3rciful/menubot/core/logger"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const receiptLogged = "receipt_logged"

// LoggerMiddleware builds the update's logging context and emits one sampled
// debug line per update, even when wrapped around several handlers.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logged, _ := c.Get(receiptLogged).(bool); logged || !logger.ShouldSampleDebug() {
			return next(c)
		}
		c.Set(receiptLogged, true)

		attrs := []slog.Attr{slog.String("status", "ok")}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			if tghelpers.IsGroupChat(chat) {
				attrs = append(attrs, slog.Bool("group", true))
			}
		}
		if user := c.Sender(); user != nil && user.ID != 0 {
			attrs = append(attrs, slog.Int64("sender_id", user.ID))
		}
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}
