package middleware

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func newContext(t *testing.T, senderID int64, text string) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return b.NewContext(tele.Update{
		ID: int(senderID),
		Message: &tele.Message{
			Text:   text,
			Chat:   &tele.Chat{ID: senderID, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: senderID},
		},
	})
}

func TestRateLimitDropsBurst(t *testing.T) {
	limited := 0
	passed := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	for i := 0; i < 3; i++ {
		if err := h(newContext(t, 1, "1")); err != nil {
			t.Fatalf("handler: %v", err)
		}
	}
	if err := h(newContext(t, 2, "1")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if passed != 2 || limited != 2 {
		t.Fatalf("passed=%d limited=%d", passed, limited)
	}
}

func TestRateLimitExcludedKind(t *testing.T) {
	passed := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	h := mw(func(tele.Context) error { passed++; return nil })
	for i := 0; i < 3; i++ {
		_ = h(newContext(t, 1, "x"))
	}
	if passed != 3 {
		t.Fatalf("passed = %d", passed)
	}
}

func TestAdminOnly(t *testing.T) {
	passed, rejected := 0, 0
	next := func(tele.Context) error { passed++; return nil }
	reject := func(tele.Context) error { rejected++; return nil }

	h := AdminOnlyMiddleware(AdminOptions{AdminID: 10, OnReject: reject})(next)
	_ = h(newContext(t, 10, "/stats"))
	_ = h(newContext(t, 11, "/stats"))
	if passed != 1 || rejected != 1 {
		t.Fatalf("passed=%d rejected=%d", passed, rejected)
	}

	unset := AdminOnlyMiddleware(AdminOptions{})(next)
	_ = unset(newContext(t, 10, "/stats"))
	if passed != 1 {
		t.Fatal("admin check passed without an admin id")
	}
}

func TestRecoverSwallowsPanic(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("bad handler") })
	if err := h(newContext(t, 3, "x")); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	c := newContext(t, 4, "hello")
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rid == "" {
		t.Fatal("rid not set")
	}
}
