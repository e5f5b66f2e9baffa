// Package gateway maintains a sharded set of connections to the Discord
// gateway.
//
// A Coordinator owns an ordered slice of Shards (index = shard number). It
// staggers their startup so that many shards do not identify at once, and it
// folds the per-shard connected/disconnected signals into two aggregate
// lifecycle events on the owning client: all shards connected, and all shards
// disconnected.
//
// Two Shard implementations are provided: Conn, a minimal native gateway
// connection over a websocket, and DiscordShard, which wraps a discordgo
// session configured for one shard of the total.
package gateway
