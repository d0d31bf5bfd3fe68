package systemd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// listenNotify binds a datagram socket and points NOTIFY_SOCKET at it.
func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func readNotify(t *testing.T, conn *net.UnixConn) string {
	t.Helper()

	buf := make([]byte, 256)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("failed to read notification: %v", err)
	}
	return string(buf[:n])
}

func TestNotify(t *testing.T) {
	tests := []struct {
		name   string
		notify func() (bool, error)
		want   string
	}{
		{name: "ready", notify: NotifyReady, want: "READY=1"},
		{name: "stopping", notify: NotifyStopping, want: "STOPPING=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := listenNotify(t)

			sent, err := tt.notify()
			if err != nil {
				t.Fatalf("notify failed: %v", err)
			}
			if !sent {
				t.Fatal("expected notification to be sent")
			}
			if got := readNotify(t, conn); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNotify_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	sent, err := NotifyReady()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Error("expected no notification outside systemd")
	}
}

func TestGetListeners_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated || listeners.Metrics != nil {
		t.Errorf("expected no activated listeners, got %+v", listeners)
	}
}

func TestRunWatchdog_Disabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")

	if err := RunWatchdog(context.Background(), quartz.NewMock(t), zerolog.Nop()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRunWatchdog_Pings(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", strconv.Itoa(int(2*time.Second/time.Microsecond)))
	t.Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))

	mClock := quartz.NewMock(t)
	trap := mClock.Trap().TickerFunc("watchdog")
	defer trap.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunWatchdog(ctx, mClock, zerolog.Nop())
	}()

	call := trap.MustWait(ctx)
	if call.Duration != time.Second {
		t.Errorf("expected ping interval 1s, got %v", call.Duration)
	}
	call.MustRelease(ctx)

	mClock.Advance(time.Second).MustWait(ctx)
	if got := readNotify(t, conn); got != "WATCHDOG=1" {
		t.Errorf("expected WATCHDOG=1, got %q", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil error after cancel, got %v", err)
	}
}
