// Package gateway turns Discord voice state updates into session signals.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/dispatch"
	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/goodtune/voicetime/internal/session"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds the handling of a single state change.
const DefaultJobTimeout = 30 * time.Second

// Flags are the voice flags diffed into toggle events.
type Flags struct {
	SelfMute   bool
	SelfDeaf   bool
	SelfVideo  bool
	Streaming  bool
	ServerDeaf bool
}

// VoiceState is a member's voice membership at one point in time.
// ChannelID is empty when the member is not in voice.
type VoiceState struct {
	UserID    string
	Username  string
	GuildID   string
	GuildName string
	ChannelID string
	Flags     Flags
}

// StateChange is one before/after voice state pair.
type StateChange struct {
	Before   VoiceState
	After    VoiceState
	Presence *device.Snapshot
	At       time.Time
}

// DiffToggles returns the toggle events between two flag sets.
func DiffToggles(before, after Flags) []storage.ToggleKind {
	var out []storage.ToggleKind
	pick := func(changed, on bool, onKind, offKind storage.ToggleKind) {
		if !changed {
			return
		}
		if on {
			out = append(out, onKind)
		} else {
			out = append(out, offKind)
		}
	}

	pick(before.SelfDeaf != after.SelfDeaf, after.SelfDeaf, storage.ToggleDeaf, storage.ToggleUndeaf)
	pick(before.SelfMute != after.SelfMute, after.SelfMute, storage.ToggleMute, storage.ToggleUnmute)
	pick(before.Streaming != after.Streaming, after.Streaming, storage.ToggleStartStream, storage.ToggleStopStream)
	pick(before.SelfVideo != after.SelfVideo, after.SelfVideo, storage.ToggleStartVideo, storage.ToggleStopVideo)
	pick(before.ServerDeaf != after.ServerDeaf, after.ServerDeaf, storage.ToggleServerDeaf, storage.ToggleServerUndeaf)
	return out
}

// Handler receives session signals. *session.Tracker implements it.
type Handler interface {
	Target() session.Target
	OnJoin(ctx context.Context, sig session.JoinSignal) (bool, error)
	OnLeave(ctx context.Context, sig session.LeaveSignal) (bool, error)
	OnToggle(ctx context.Context, sig session.ToggleSignal) error
}

// Adapter filters state changes to the target channel and feeds them to the
// Handler, one user at a time.
type Adapter struct {
	handler    Handler
	executor   *dispatch.Executor
	clock      quartz.Clock
	location   *time.Location
	jobTimeout time.Duration
	logger     zerolog.Logger
}

// AdapterConfig holds adapter configuration
type AdapterConfig struct {
	Clock      quartz.Clock
	Location   *time.Location
	JobTimeout time.Duration
}

// NewAdapter creates a new ingestion adapter
func NewAdapter(handler Handler, executor *dispatch.Executor, config AdapterConfig, logger zerolog.Logger) *Adapter {
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.JobTimeout == 0 {
		config.JobTimeout = DefaultJobTimeout
	}
	return &Adapter{
		handler:    handler,
		executor:   executor,
		clock:      config.Clock,
		location:   config.Location,
		jobTimeout: config.JobTimeout,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// Handle stamps the change with its receipt time and queues it behind any
// pending work for the same user.
func (a *Adapter) Handle(change StateChange) error {
	if change.At.IsZero() {
		change.At = a.clock.Now("gateway", "receive").In(a.location)
	}

	userID := change.After.UserID
	if userID == "" {
		userID = change.Before.UserID
	}

	err := a.executor.Submit(userID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.jobTimeout)
		defer cancel()
		a.Process(ctx, change)
	})
	if err != nil && errors.Is(err, dispatch.ErrClosed) {
		a.logger.Warn().Str("user_id", userID).Msg("Dropping voice state update during shutdown")
	}
	return err
}

// Process routes a single change synchronously.
func (a *Adapter) Process(ctx context.Context, change StateChange) {
	target := a.handler.Target()
	after, before := change.After, change.Before

	switch {
	case after.ChannelID != "" && after.GuildID == target.GuildID && after.ChannelID == target.ChannelID:
		metrics.GatewayEvents.WithLabelValues("in_channel").Inc()
		a.join(ctx, change)
		for _, kind := range DiffToggles(before.Flags, after.Flags) {
			err := a.handler.OnToggle(ctx, session.ToggleSignal{
				UserID:   after.UserID,
				Username: after.Username,
				Kind:     kind,
				At:       change.At,
			})
			if err != nil {
				a.logger.Debug().Err(err).Str("user_id", after.UserID).Msg("Toggle rejected")
			}
		}

	case before.ChannelID == target.ChannelID && after.ChannelID == "":
		metrics.GatewayEvents.WithLabelValues("leave").Inc()
		a.leave(ctx, change)

	default:
		metrics.GatewayEvents.WithLabelValues("ignored").Inc()
	}
}

func (a *Adapter) join(ctx context.Context, change StateChange) {
	after := change.After
	created, err := a.handler.OnJoin(ctx, session.JoinSignal{
		UserID:     after.UserID,
		Username:   after.Username,
		GuildID:    after.GuildID,
		ServerName: after.GuildName,
		ChannelID:  after.ChannelID,
		Presence:   change.Presence,
		At:         change.At,
	})
	if err != nil {
		a.logger.Debug().Err(err).Str("user_id", after.UserID).Msg("Join rejected")
		return
	}
	if created {
		a.logger.Debug().Str("user_id", after.UserID).Msg("Join accepted")
	}
}

func (a *Adapter) leave(ctx context.Context, change StateChange) {
	before := change.Before
	username := before.Username
	if username == "" {
		username = change.After.Username
	}
	guildName := before.GuildName
	if guildName == "" {
		guildName = change.After.GuildName
	}

	_, err := a.handler.OnLeave(ctx, session.LeaveSignal{
		UserID:        before.UserID,
		Username:      username,
		GuildID:       before.GuildID,
		ServerName:    guildName,
		PrevChannelID: before.ChannelID,
		ChannelID:     change.After.ChannelID,
		At:            change.At,
	})
	if err != nil {
		a.logger.Debug().Err(err).Str("user_id", before.UserID).Msg("Leave rejected")
	}
}
