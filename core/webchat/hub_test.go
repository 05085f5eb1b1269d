package webchat

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m3rciful/menubot/core/dialog"
)

type echoDialog struct {
	mu  sync.Mutex
	hub *Hub
	in  []dialog.Inbound
}

func (d *echoDialog) HandleMessage(ctx context.Context, in dialog.Inbound) (dialog.Transition, error) {
	d.mu.Lock()
	d.in = append(d.in, in)
	d.mu.Unlock()
	if err := d.hub.Send(ctx, in.SenderID, "echo:"+in.Text); err != nil {
		return dialog.Transition{}, err
	}
	return dialog.Transition{UserID: in.SenderID, Action: dialog.ActionAnswer}, nil
}

func (d *echoDialog) inbound() []dialog.Inbound {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialog.Inbound(nil), d.in...)
}

func startHub(t *testing.T) (*Hub, *echoDialog, string) {
	t.Helper()
	d := &echoDialog{}
	hub := NewHub(d, nil)
	d.hub = hub
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, d, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outgoingFrame {
	t.Helper()
	var frame outgoingFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func TestHubRoundTrip(t *testing.T) {
	hub, d, url := startHub(t)
	conn := dial(t, url)

	hello := readFrame(t, conn)
	if hello.Type != "connected" || hello.VisitorID == "" {
		t.Fatalf("hello = %+v", hello)
	}

	if err := conn.WriteJSON(map[string]string{"text": "1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readFrame(t, conn)
	if reply.Type != "reply" || reply.Text != "echo:1" {
		t.Fatalf("reply = %+v", reply)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("8")); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	if reply := readFrame(t, conn); reply.Text != "echo:8" {
		t.Fatalf("raw reply = %+v", reply)
	}

	in := d.inbound()
	if len(in) != 2 || in[0].SenderID != "web:"+hello.VisitorID || in[0].IsGroup {
		t.Fatalf("inbound = %+v", in)
	}
	if hub.Connected() != 1 {
		t.Fatalf("connected = %d", hub.Connected())
	}
}

func TestHubResumesVisitor(t *testing.T) {
	_, _, url := startHub(t)
	const visitor = "7f9c24e5-2b4a-4d8f-9a57-2f1c1e0c8a11"

	conn := dial(t, url+"?visitor="+visitor)
	if hello := readFrame(t, conn); hello.VisitorID != visitor {
		t.Fatalf("visitor = %q", hello.VisitorID)
	}

	other := dial(t, url+"?visitor=not-a-uuid")
	if hello := readFrame(t, other); hello.VisitorID == "not-a-uuid" || hello.VisitorID == "" {
		t.Fatalf("bad visitor id kept: %q", hello.VisitorID)
	}
}

func TestHubSendErrors(t *testing.T) {
	hub := NewHub(&echoDialog{}, nil)
	if err := hub.Send(context.Background(), "tg:1", "x"); !errors.Is(err, dialog.ErrNoRoute) {
		t.Fatalf("foreign recipient err = %v", err)
	}
	if err := hub.Send(context.Background(), "web:nobody", "x"); !errors.Is(err, ErrOffline) {
		t.Fatalf("offline err = %v", err)
	}
}

func TestHubCloseDisconnects(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)
	readFrame(t, conn)

	hub.Close()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after Close")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Connected() != 0 {
		t.Fatalf("connected = %d after Close", hub.Connected())
	}
}

func TestDecodeText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"text":"2"}`, "2"},
		{"10", "10"},
		{"oi", "oi"},
		{`{}`, ""},
	}
	for _, tc := range cases {
		if got := decodeText([]byte(tc.in)); got != tc.want {
			t.Fatalf("decodeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
