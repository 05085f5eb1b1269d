package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func TestShouldRetry(t *testing.T) {
	retry := []error{
		&net.OpError{Op: "dial", Err: errors.New("refused")},
		&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: timeoutErr{}},
		errors.New("telegram: retry after 3 (429)"),
		statusErr(502),
	}
	for _, err := range retry {
		if !ShouldRetry(err) {
			t.Fatalf("ShouldRetry(%v) = false", err)
		}
	}
	noRetry := []error{
		nil,
		errors.New("telegram: chat not found (400)"),
		statusErr(403),
		errors.New("plain failure"),
	}
	for _, err := range noRetry {
		if ShouldRetry(err) {
			t.Fatalf("ShouldRetry(%v) = true", err)
		}
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{&net.DNSError{Err: "no such host", Name: "x"}, "dns"},
		{&net.OpError{Op: "dial", Err: errors.New("no")}, "dial"},
		{errors.New("telegram: bot was blocked (403)"), "http_4xx"},
		{fmt.Errorf("wrap: %w", statusErr(503)), "http_5xx"},
		{errors.New("something odd"), "unknown"},
		{fmt.Errorf("send: %w", context.Canceled), "canceled"},
		{&url.Error{Op: "Get", URL: "u", Err: timeoutErr{}}, "timeout"},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Fatalf("ClassifyError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:AA-bb_cc/sendMessage": EOF`)
	got := SanitizeError(err)
	want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`
	if got != want {
		t.Fatalf("SanitizeError = %q", got)
	}
}
