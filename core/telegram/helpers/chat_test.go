package helpers

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestIsGroupChat(t *testing.T) {
	cases := map[tele.ChatType]bool{
		tele.ChatPrivate:        false,
		tele.ChatGroup:          true,
		tele.ChatSuperGroup:     true,
		tele.ChatChannel:        true,
		tele.ChatChannelPrivate: true,
	}
	for typ, want := range cases {
		if got := IsGroupChat(&tele.Chat{Type: typ}); got != want {
			t.Fatalf("IsGroupChat(%s) = %v", typ, got)
		}
	}
	if IsGroupChat(nil) {
		t.Fatal("nil chat reported as group")
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	id := ChatSessionID(&tele.Chat{ID: 987654321})
	if id != "tg:987654321" {
		t.Fatalf("session id = %q", id)
	}
	chatID, ok := ChatIDFromSession(id)
	if !ok || chatID != 987654321 {
		t.Fatalf("chat id = %d %v", chatID, ok)
	}
	if _, ok := ChatIDFromSession("web:987654321"); ok {
		t.Fatal("web id parsed as telegram")
	}
	if ChatSessionID(nil) != "" {
		t.Fatal("nil chat produced an id")
	}
}
