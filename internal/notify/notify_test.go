package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/rs/zerolog"
)

type sent struct {
	target string
	text   string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recordingSender) Send(_ context.Context, target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sent{target, text})
	return nil
}

func TestDispatcher_Messages(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	at := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	d := NewDispatcher(sender, Targets{Join: "j", Leave: "l", TotalTime: "t"}, loc, 0, zerolog.Nop())
	ctx := context.Background()

	if err := d.Join(ctx, "alice", at, "Guild", device.Set{device.Desktop, device.Web}); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := d.Leave(ctx, "alice", at, "Guild"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if err := d.TotalTime(ctx, "alice", storage.Duration{Hours: 1, Minutes: 30}); err != nil {
		t.Fatalf("TotalTime failed: %v", err)
	}

	want := []sent{
		{"j", "```User alice joined the voice channel at 2024-01-01T10:00:00+07:00 on server Guild using desktop, web```"},
		{"l", "```User alice left the voice channel at 2024-01-01T10:00:00+07:00 on server Guild```"},
		{"t", "```User alice spent a total of 1 hours, 30 minutes, 0 seconds in the voice channel.```"},
	}
	if len(sender.sent) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(sender.sent))
	}
	for i := range want {
		if sender.sent[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, sender.sent[i], want[i])
		}
	}
}

func TestDispatcher_UnconfiguredCategorySkipped(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Targets{Join: "j"}, nil, 0, zerolog.Nop())

	if err := d.Leave(context.Background(), "alice", time.Now(), "Guild"); err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected nothing sent, got %+v", sender.sent)
	}
}

func TestDispatcher_SendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("unknown channel")}
	d := NewDispatcher(sender, Targets{TotalTime: "t"}, nil, 0, zerolog.Nop())

	err := d.TotalTime(context.Background(), "alice", storage.Duration{})
	if !errors.Is(err, sender.err) {
		t.Errorf("expected wrapped sender error, got %v", err)
	}
}

type deadlineSender struct {
	parentErr   error
	hasDeadline bool
}

func (d *deadlineSender) Send(ctx context.Context, _, _ string) error {
	d.parentErr = ctx.Err()
	_, d.hasDeadline = ctx.Deadline()
	return nil
}

func TestDispatcher_SendOutlivesCaller(t *testing.T) {
	sender := &deadlineSender{}
	d := NewDispatcher(sender, Targets{Leave: "l"}, nil, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Leave(ctx, "alice", time.Now(), "Guild"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if sender.parentErr != nil {
		t.Errorf("send context inherited cancellation: %v", sender.parentErr)
	}
	if !sender.hasDeadline {
		t.Error("expected send context to carry its own deadline")
	}
}

func TestWebhookSender(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"no content", http.StatusNoContent, false},
		{"ok", http.StatusOK, false},
		{"bad request", http.StatusBadRequest, true},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got webhookPayload
			var posts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				posts.Add(1)
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
					t.Errorf("unexpected content type %q", ct)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := NewWebhookSender(WebhookConfig{Timeout: time.Second})
			err := s.Send(context.Background(), srv.URL, "```hello```")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Content != "```hello```" {
				t.Errorf("payload content = %q", got.Content)
			}
			if n := posts.Load(); n != 1 {
				t.Errorf("server saw %d POSTs, want 1", n)
			}
		})
	}
}
