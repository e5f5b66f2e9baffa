package gateway

import "encoding/json"

// Gateway opcodes. Only the ones the runtime sends or reacts to.
const (
	OpDispatch         = 0
	OpHeartbeat        = 1
	OpIdentify         = 2
	OpPresenceUpdate   = 3
	OpVoiceStateUpdate = 4
	OpResume           = 6
	OpReconnect        = 7
	OpInvalidSession   = 9
	OpHello            = 10
	OpHeartbeatACK     = 11
)

// Payload is an outbound gateway payload routed through a shard.
// Data is marshaled as the "d" field.
type Payload struct {
	Op   int `json:"op"`
	Data any `json:"d"`
}

// event is an inbound gateway payload. The dispatch data is left raw; the
// runtime only decodes the handful of events it cares about.
type event struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  int64           `json:"s"`
	Type string          `json:"t"`
}

// VoiceStateUpdate is the "d" field of an op 4 payload. It is also the shape
// DiscordShard knows how to route without a raw gateway connection.
type VoiceStateUpdate struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	SelfMute  bool   `json:"self_mute"`
	SelfDeaf  bool   `json:"self_deaf"`
}
