package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/session"
	"github.com/goodtune/voicetime/internal/statuslog"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/goodtune/voicetime/internal/storage/memory"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

var bangkok = time.FixedZone("ICT", 7*3600)

type fakeSessions []session.ActiveSession

func (f fakeSessions) Snapshot() []session.ActiveSession { return f }

type fakeCache map[string]float64

func (f fakeCache) LastSessionMinutes(userID string) (float64, bool) {
	v, ok := f[userID]
	return v, ok
}

func setupRouter(t *testing.T) (*mux.Router, *memory.Store) {
	t.Helper()

	store := memory.New()
	ctx := context.Background()
	joinedAt := time.Date(2024, 1, 1, 10, 0, 0, 0, bangkok)

	if err := store.Joins().Insert(ctx, storage.JoinRecord{
		UserID:     "u1",
		Username:   "alice",
		ServerName: "guild",
		Timestamp:  joinedAt,
		Devices:    device.Set{device.Web},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Totals().Create(ctx, &storage.DailyTotal{
		DiscordID:   "u1",
		DiscordName: "alice",
		ServerName:  "guild",
		CreatedAt:   joinedAt.Add(90 * time.Minute),
		Sessions: []storage.SessionEntry{{
			Devices:  device.Set{device.Web},
			Total:    storage.Duration{Hours: 1, Minutes: 30},
			JoinTime: time.Unix(0, 0).UTC(),
		}},
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	history := statuslog.New(store.Toggles(), bangkok, zerolog.Nop())
	if err := history.Append(ctx, "u1", "alice", storage.ToggleMute, joinedAt.Add(time.Minute)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	sessions := fakeSessions{{
		UserID:     "u2",
		Username:   "bob",
		GuildID:    "g1",
		ServerName: "guild",
		JoinedAt:   joinedAt,
		Devices:    device.Set{device.Desktop},
	}}
	cache := fakeCache{"u1": 90.5}

	router := mux.NewRouter()
	NewHandler(sessions, cache, history, store, bangkok, zerolog.Nop()).Register(router)
	return router, store
}

func TestHandler_Routes(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "active sessions", path: "/api/sessions/active", wantStatus: http.StatusOK},
		{name: "daily total", path: "/api/users/u1/totals/2024-01-01", wantStatus: http.StatusOK},
		{name: "daily total other day", path: "/api/users/u1/totals/2024-01-02", wantStatus: http.StatusNotFound},
		{name: "daily total bad date", path: "/api/users/u1/totals/01-01-2024", wantStatus: http.StatusBadRequest},
		{name: "last join", path: "/api/users/u1/last-join", wantStatus: http.StatusOK},
		{name: "last join unknown user", path: "/api/users/u9/last-join", wantStatus: http.StatusNotFound},
		{name: "last session", path: "/api/users/u1/last-session", wantStatus: http.StatusOK},
		{name: "last session uncached", path: "/api/users/u2/last-session", wantStatus: http.StatusNotFound},
		{name: "toggles", path: "/api/users/u1/toggles?username=alice", wantStatus: http.StatusOK},
		{name: "toggles other username", path: "/api/users/u1/toggles?username=bob", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}
		})
	}
}

func TestHandler_ActiveSessionsBody(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/active", nil))

	var body struct {
		Sessions []session.ActiveSession `json:"sessions"`
		Count    int                     `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Count != 1 || len(body.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v", body)
	}
	if body.Sessions[0].UserID != "u2" {
		t.Errorf("expected session for u2, got %q", body.Sessions[0].UserID)
	}
}

func TestHandler_LastSessionBreakdown(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/u1/last-session", nil))

	var body struct {
		Minutes float64          `json:"minutes"`
		Total   storage.Duration `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	want := storage.Duration{Hours: 1, Minutes: 30, Seconds: 30}
	if body.Total != want {
		t.Errorf("expected %+v, got %+v", want, body.Total)
	}
}

func TestHandler_StoreError(t *testing.T) {
	store := memory.New()
	router := mux.NewRouter()
	NewHandler(fakeSessions{}, fakeCache{}, statuslog.New(store.Toggles(), bangkok, zerolog.Nop()), failingStore{store}, bangkok, zerolog.Nop()).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/u1/last-join", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

type failingStore struct {
	*memory.Store
}

func (f failingStore) Joins() storage.JoinStore { return failingJoins{} }

type failingJoins struct{}

func (failingJoins) Insert(context.Context, storage.JoinRecord) error { return context.DeadlineExceeded }

func (failingJoins) FindLatest(context.Context, string) (*storage.JoinRecord, error) {
	return nil, context.DeadlineExceeded
}
