package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/goodtune/voicetime/internal/device"
	"github.com/rs/zerolog"
)

// Intents required to see voice states, member names and client presence.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMembers

// stateLookup is the subset of *discordgo.State used to enrich events.
type stateLookup interface {
	Presence(guildID, userID string) (*discordgo.Presence, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	Guild(guildID string) (*discordgo.Guild, error)
}

// Client is a Discord bot connection. It feeds voice state updates to an
// Adapter and sends notification messages as the bot user.
type Client struct {
	session *discordgo.Session
	adapter *Adapter
	logger  zerolog.Logger
}

// NewClient creates a bot session. Call SetAdapter before Open to receive
// voice events.
func NewClient(token string, logger zerolog.Logger) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackVoice = true
	s.State.TrackPresences = true
	s.State.TrackMembers = true
	// Handlers only enqueue work; run them inline to keep arrival order.
	s.SyncEvents = true

	c := &Client{
		session: s,
		logger:  logger.With().Str("component", "discord").Logger(),
	}
	s.AddHandler(c.onReady)
	s.AddHandler(c.onVoiceStateUpdate)
	return c, nil
}

// SetAdapter sets the destination for voice state updates.
func (c *Client) SetAdapter(adapter *Adapter) {
	c.adapter = adapter
}

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

// Send posts text to a channel as the bot user.
func (c *Client) Send(ctx context.Context, channelID, text string) error {
	if _, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.logger.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Bot is online")
}

func (c *Client) onVoiceStateUpdate(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if c.adapter == nil || e.VoiceState == nil {
		return
	}
	change := Convert(s.State, e)
	_ = c.adapter.Handle(change)
}

// Convert builds a StateChange from a gateway event, enriching it with
// member, guild and presence data from the state cache.
func Convert(state stateLookup, e *discordgo.VoiceStateUpdate) StateChange {
	after := convertVoiceState(state, e.VoiceState)

	var before VoiceState
	if e.BeforeUpdate != nil {
		before = convertVoiceState(state, e.BeforeUpdate)
	} else {
		before = VoiceState{
			UserID:    after.UserID,
			Username:  after.Username,
			GuildID:   after.GuildID,
			GuildName: after.GuildName,
		}
	}

	return StateChange{
		Before:   before,
		After:    after,
		Presence: presenceSnapshot(state, after.GuildID, after.UserID),
	}
}

func convertVoiceState(state stateLookup, vs *discordgo.VoiceState) VoiceState {
	out := VoiceState{
		UserID:    vs.UserID,
		GuildID:   vs.GuildID,
		ChannelID: vs.ChannelID,
		Flags: Flags{
			SelfMute:   vs.SelfMute,
			SelfDeaf:   vs.SelfDeaf,
			SelfVideo:  vs.SelfVideo,
			Streaming:  vs.SelfStream,
			ServerDeaf: vs.Deaf,
		},
	}

	member := vs.Member
	if member == nil || member.User == nil {
		if m, err := state.Member(vs.GuildID, vs.UserID); err == nil {
			member = m
		}
	}
	if member != nil && member.User != nil {
		out.Username = member.User.Username
	}

	if g, err := state.Guild(vs.GuildID); err == nil {
		out.GuildName = g.Name
	}
	return out
}

// presenceSnapshot returns nil when the member has no cached presence.
func presenceSnapshot(state stateLookup, guildID, userID string) *device.Snapshot {
	p, err := state.Presence(guildID, userID)
	if err != nil || p == nil {
		return nil
	}
	return &device.Snapshot{
		Desktop: online(p.ClientStatus.Desktop),
		Web:     online(p.ClientStatus.Web),
		Mobile:  online(p.ClientStatus.Mobile),
	}
}

func online(s discordgo.Status) bool {
	return s != "" && s != discordgo.StatusOffline
}
