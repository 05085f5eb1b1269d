package telegram

import (
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

// StartLink returns the deep link opening a chat with the bot.
func StartLink(username string) string {
	return "https://t.me/" + username
}

// PrintStartQR renders the bot's start link as a QR code on w.
func PrintStartQR(w io.Writer, username string) {
	link := StartLink(username)
	fmt.Fprintf(w, "Scan to chat with @%s (%s)\n", username, link)
	qrterminal.GenerateHalfBlock(link, qrterminal.L, w)
}

// stdoutIsTerminal reports whether stdout is attached to a TTY.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
