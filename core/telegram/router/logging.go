package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/netutil"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// logHandled writes one summary line per handled update. An empty status
// becomes "ok" or "fail" depending on err.
func logHandled(c tele.Context, handler string, start time.Time, status string, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, handler)
	level := slog.LevelInfo
	if status == "" {
		status = "ok"
		if err != nil {
			status = "fail"
		}
	}
	attrs := make([]slog.Attr, 0, 4+len(extras))
	attrs = append(attrs,
		slog.String("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(netutil.SanitizeError(err), 256)),
			slog.String("cause", netutil.ClassifyError(err)),
		)
	}
	attrs = append(attrs, extras...)
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}
