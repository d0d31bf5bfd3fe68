// Package notify formats session activity messages and sends them to the
// configured log channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/rs/zerolog"
)

// Message categories.
const (
	CategoryJoin      = "join"
	CategoryLeave     = "leave"
	CategoryTotalTime = "total_time"
)

// Sender delivers a text message to a target. The target is a channel ID for
// the bot sender and a webhook URL for the webhook sender.
type Sender interface {
	Send(ctx context.Context, target, text string) error
}

// Targets maps each category to its destination. Empty means disabled.
type Targets struct {
	Join      string
	Leave     string
	TotalTime string
}

// DefaultSendTimeout bounds a single send when no timeout is configured.
const DefaultSendTimeout = 10 * time.Second

// Dispatcher formats and sends join, leave and total-time messages.
type Dispatcher struct {
	sender   Sender
	targets  Targets
	location *time.Location
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewDispatcher creates a new dispatcher. Timestamps are rendered in loc.
// Each send gets its own deadline of timeout, detached from the caller's.
func NewDispatcher(sender Sender, targets Targets, loc *time.Location, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		sender:   sender,
		targets:  targets,
		location: loc,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// FormatJoin renders the join message body.
func FormatJoin(username string, at time.Time, serverName string, devices device.Set) string {
	return fmt.Sprintf("User %s joined the voice channel at %s on server %s using %s",
		username, at.Format(time.RFC3339), serverName, devices.String())
}

// FormatLeave renders the leave message body.
func FormatLeave(username string, at time.Time, serverName string) string {
	return fmt.Sprintf("User %s left the voice channel at %s on server %s",
		username, at.Format(time.RFC3339), serverName)
}

// FormatTotalTime renders the total-time message body.
func FormatTotalTime(username string, total storage.Duration) string {
	return fmt.Sprintf("User %s spent a total of %d hours, %d minutes, %d seconds in the voice channel.",
		username, total.Hours, total.Minutes, total.Seconds)
}

// Fence wraps text in a code block.
func Fence(text string) string {
	return "```" + text + "```"
}

// Join sends the join message.
func (d *Dispatcher) Join(ctx context.Context, username string, at time.Time, serverName string, devices device.Set) error {
	return d.send(ctx, CategoryJoin, d.targets.Join, FormatJoin(username, at.In(d.location), serverName, devices))
}

// Leave sends the leave message.
func (d *Dispatcher) Leave(ctx context.Context, username string, at time.Time, serverName string) error {
	return d.send(ctx, CategoryLeave, d.targets.Leave, FormatLeave(username, at.In(d.location), serverName))
}

// TotalTime sends the total-time message.
func (d *Dispatcher) TotalTime(ctx context.Context, username string, total storage.Duration) error {
	return d.send(ctx, CategoryTotalTime, d.targets.TotalTime, FormatTotalTime(username, total))
}

func (d *Dispatcher) send(ctx context.Context, category, target, text string) error {
	if target == "" {
		metrics.NotificationsSent.WithLabelValues(category, "skipped").Inc()
		d.logger.Debug().Str("category", category).Msg("No target configured, skipping notification")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, target, Fence(text)); err != nil {
		metrics.NotificationsSent.WithLabelValues(category, "failed").Inc()
		return fmt.Errorf("failed to send %s notification: %w", category, err)
	}

	metrics.NotificationsSent.WithLabelValues(category, "sent").Inc()
	d.logger.Debug().
		Str("category", category).
		Str("target", target).
		Msg("Notification sent")
	return nil
}
