package router

import (
	"context"
	"testing"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/dialog"
	tg "github.com/m3rciful/menubot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

func TestBotSettingsKeepPerChatOrder(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "123:abc"
	settings := tg.BotSettings(cfg)
	if !settings.Synchronous {
		t.Fatal("bot settings dispatch handlers concurrently")
	}
	settings.Offline = true

	b, err := tele.NewBot(settings)
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	engine, err := dialog.NewEngine(dialog.Options{
		Sender: dialog.SenderFunc(func(context.Context, string, string) error { return nil }),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer engine.Scheduler().Stop()
	for _, r := range TextRoutes(engine) {
		b.Handle(r.Endpoint, r.Handler)
	}

	const chats = 300
	updateID := 0
	for i := 1; i <= chats; i++ {
		chat := &tele.Chat{ID: int64(i), Type: tele.ChatPrivate}
		for _, text := range []string{"hi", "8", "10"} {
			updateID++
			b.ProcessUpdate(tele.Update{
				ID: updateID,
				Message: &tele.Message{
					Text:   text,
					Chat:   chat,
					Sender: &tele.User{ID: chat.ID},
				},
			})
		}
	}

	for _, s := range engine.Store().List() {
		if s.State != dialog.StateMenuReady {
			t.Fatalf("%s ended in %s", s.UserID, s.State)
		}
	}
	if n := engine.Store().Len(); n != chats {
		t.Fatalf("sessions = %d, want %d", n, chats)
	}
	if n := engine.Scheduler().Len(); n != 0 {
		t.Fatalf("pending timers = %d", n)
	}
}
