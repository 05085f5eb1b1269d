package helpers

import (
	"strconv"

	"github.com/m3rciful/menubot/core/dialog"

	tele "gopkg.in/telebot.v4"
)

// Transport is the user id prefix for Telegram sessions.
const Transport = "tg"

// IsGroupChat reports whether messages from chat must be ignored by the dialog.
func IsGroupChat(chat *tele.Chat) bool {
	if chat == nil {
		return false
	}
	switch chat.Type {
	case tele.ChatGroup, tele.ChatSuperGroup, tele.ChatChannel, tele.ChatChannelPrivate:
		return true
	}
	return false
}

// ChatSessionID maps a chat to its dialog user id.
func ChatSessionID(chat *tele.Chat) string {
	if chat == nil {
		return ""
	}
	return dialog.UserID(Transport, strconv.FormatInt(chat.ID, 10))
}

// ChatIDFromSession recovers the numeric chat id from a "tg:" user id.
func ChatIDFromSession(userID string) (int64, bool) {
	transport, local, ok := dialog.SplitUserID(userID)
	if !ok || transport != Transport {
		return 0, false
	}
	id, err := strconv.ParseInt(local, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
