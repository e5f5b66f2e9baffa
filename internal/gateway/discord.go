package gateway

import (
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// DiscordShard wraps a discordgo session configured as one shard of the
// total. discordgo owns the wire protocol (identify, heartbeat, resume); the
// wrapper only adapts its lifecycle events to the coordinator's signal
// callbacks.
type DiscordShard struct {
	session   *discordgo.Session
	index     int
	total     int
	connected atomic.Bool
}

// NewDiscordShardFactory returns a ShardFactory producing discordgo-backed
// shards for the given bot token. An invalid token shape is a programmer
// error; real authentication failures surface later from Connect.
func NewDiscordShardFactory(token string) ShardFactory {
	return func(index, total int, notify Notifier) Shard {
		session, err := discordgo.New("Bot " + token)
		if err != nil {
			panic(fmt.Sprintf("gateway: failed to construct discord session: %v", err))
		}
		session.ShardID = index
		session.ShardCount = total

		d := &DiscordShard{
			session: session,
			index:   index,
			total:   total,
		}
		session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
			d.connected.Store(true)
			notify.SignalShardConnected(index)
		})
		session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			if d.connected.Swap(false) {
				notify.SignalShardDisconnected(index)
			}
		})
		return d
	}
}

func (d *DiscordShard) Connect() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session for shard %d: %w", d.index, err)
	}
	return nil
}

func (d *DiscordShard) Disconnect() error {
	return d.session.Close()
}

// SendGatewayPayload routes the payloads discordgo exposes an API for.
// discordgo does not allow arbitrary writes on its websocket, so unsupported
// opcodes return an error instead of being dropped.
func (d *DiscordShard) SendGatewayPayload(p Payload) error {
	switch p.Op {
	case OpVoiceStateUpdate:
		v, ok := p.Data.(VoiceStateUpdate)
		if !ok {
			return fmt.Errorf("op %d payload must be a VoiceStateUpdate, got %T", p.Op, p.Data)
		}
		return d.session.ChannelVoiceJoinManual(v.GuildID, v.ChannelID, v.SelfMute, v.SelfDeaf)
	case OpPresenceUpdate:
		status, ok := p.Data.(discordgo.UpdateStatusData)
		if !ok {
			return fmt.Errorf("op %d payload must be an UpdateStatusData, got %T", p.Op, p.Data)
		}
		return d.session.UpdateStatusComplex(status)
	default:
		return fmt.Errorf("op %d cannot be routed through a discordgo shard", p.Op)
	}
}

func (d *DiscordShard) Connected() bool  { return d.connected.Load() }
func (d *DiscordShard) ShardIndex() int  { return d.index }
func (d *DiscordShard) TotalShards() int { return d.total }

// Session exposes the underlying discordgo session for collaborators that
// need it directly, such as voice channel joins.
func (d *DiscordShard) Session() *discordgo.Session {
	return d.session
}

var _ Shard = (*DiscordShard)(nil)
