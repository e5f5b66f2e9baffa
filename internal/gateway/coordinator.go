package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultStagger is the delay between starting successive shard connections.
// Discord rate-limits identifies, so shards never connect in a burst.
const DefaultStagger = 5 * time.Second

// Shard is one independent connection to the gateway. Implementations flip
// their own connected flag and report the transition to the Notifier they
// were constructed with; the Coordinator never mutates a shard's state
// directly.
type Shard interface {
	Connect() error
	Disconnect() error
	SendGatewayPayload(p Payload) error
	Connected() bool
	ShardIndex() int
	TotalShards() int
}

// Notifier receives per-shard lifecycle transitions. The Coordinator
// implements it.
type Notifier interface {
	SignalShardConnected(index int)
	SignalShardDisconnected(index int)
}

// Events is the owning client's view of aggregate shard lifecycle. Both
// callbacks carry no payload; they fire at most once per connect or
// disconnect cycle.
type Events interface {
	AllShardsConnected()
	AllShardsDisconnected()
}

// ShardFactory builds one shard wired back to the coordinator that owns it.
type ShardFactory func(index, total int, notify Notifier) Shard

// Coordinator owns an ordered set of shards, staggers their startup, and
// derives the aggregate connected/disconnected events from per-shard
// signals.
//
// All mutable state (the unit slice, both counters, the closed flag) is
// guarded by a single mutex, so counter updates from shards finishing at the
// same instant are totally ordered.
type Coordinator struct {
	mu             sync.Mutex
	units          []Shard
	closed         bool
	connectedCount int
	closedCount    int
	events         Events
	factory        ShardFactory
	stagger        time.Duration
}

// NewCoordinator returns a coordinator with no shards. Call Reshard to
// populate it. events may be nil, in which case lifecycle-affecting calls
// (Disconnect, Reshard) are no-ops until an events sink exists.
func NewCoordinator(events Events, factory ShardFactory) *Coordinator {
	return &Coordinator{
		events:  events,
		factory: factory,
		stagger: DefaultStagger,
	}
}

// SetStagger overrides the delay between successive shard starts. It applies
// to connect loops started after the call.
func (c *Coordinator) SetStagger(d time.Duration) {
	c.mu.Lock()
	c.stagger = d
	c.mu.Unlock()
}

// Detach drops the reference to the owning client. Subsequent Disconnect and
// Reshard calls are no-ops and no further aggregate events fire.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

// Reshard discards all existing shards and builds n fresh ones, indexed
// 0..n-1, each wired back to this coordinator. Both aggregate counters reset
// to zero. n < 1 is a programmer error.
func (c *Coordinator) Reshard(n int) {
	if n < 1 {
		panic(fmt.Sprintf("gateway: Reshard called with %d shards", n))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return
	}

	units := make([]Shard, n)
	for i := range units {
		units[i] = c.factory(i, n, c)
	}
	c.units = units
	c.connectedCount = 0
	c.closedCount = 0
}

// Connect starts every shard in index order, waiting the stagger interval
// between each. It returns immediately; the loop runs in the background.
// A Disconnect arriving mid-loop stops further launches, but shards already
// connecting are left alone.
func (c *Coordinator) Connect() {
	c.mu.Lock()
	c.closed = false
	units := make([]Shard, len(c.units))
	copy(units, c.units)
	stagger := c.stagger
	c.mu.Unlock()

	go func() {
		for i, unit := range units {
			if c.isClosed() {
				slog.Info("shard connect loop stopped", "nextShard", i)
				return
			}
			if err := unit.Connect(); err != nil {
				// The shard owns its own retry policy; a failed
				// connect is just logged here.
				slog.Error("shard failed to connect", "shard", i, slog.Any("error", err))
			}
			time.Sleep(stagger)
		}
	}()
}

// Disconnect stops the connect loop and disconnects every shard regardless
// of its current state. If the fully-connected state was never reached this
// cycle, the all-disconnected event fires immediately: shards that never
// connected will never report a disconnect, so the closed counter could not
// otherwise reach the full count. Whether that state was reached is judged
// by the monotonic connected count, not the shards' live flags. A shard
// that dropped again after a full connect still reports its disconnect, so
// firing here too would raise the event twice in one cycle.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	if c.events == nil {
		c.mu.Unlock()
		return
	}
	c.closed = true
	events := c.events
	fullyConnected := c.connectedCount >= len(c.units)
	units := make([]Shard, len(c.units))
	copy(units, c.units)
	c.mu.Unlock()

	for _, unit := range units {
		if err := unit.Disconnect(); err != nil {
			slog.Error("shard failed to disconnect", "shard", unit.ShardIndex(), slog.Any("error", err))
		}
	}

	if !fullyConnected {
		events.AllShardsDisconnected()
	}
}

// SendPayload routes a payload to the shard at the given index. An
// out-of-range index is a programmer error.
func (c *Coordinator) SendPayload(p Payload, shard int) error {
	c.mu.Lock()
	if shard < 0 || shard >= len(c.units) {
		n := len(c.units)
		c.mu.Unlock()
		panic(fmt.Sprintf("gateway: SendPayload on shard %d of %d", shard, n))
	}
	unit := c.units[shard]
	c.mu.Unlock()

	return unit.SendGatewayPayload(p)
}

// SignalShardConnected is called by a shard when it reaches the connected
// state. When every shard has reported, the all-connected event fires. The
// counter does not deduplicate indexes: a shard that signals twice in one
// cycle advances the count twice, so callers must signal exactly once per
// shard per cycle.
func (c *Coordinator) SignalShardConnected(index int) {
	c.mu.Lock()
	c.connectedCount++
	fire := len(c.units) > 0 && c.connectedCount == len(c.units)
	events := c.events
	c.mu.Unlock()

	slog.Debug("shard connected", "shard", index)
	if fire && events != nil {
		events.AllShardsConnected()
	}
}

// SignalShardDisconnected is the disconnect counterpart of
// SignalShardConnected, with the same no-deduplication caveat.
func (c *Coordinator) SignalShardDisconnected(index int) {
	c.mu.Lock()
	c.closedCount++
	fire := len(c.units) > 0 && c.closedCount == len(c.units)
	events := c.events
	c.mu.Unlock()

	slog.Debug("shard disconnected", "shard", index)
	if fire && events != nil {
		events.AllShardsDisconnected()
	}
}

// ShardCount returns the number of shards the coordinator currently owns.
func (c *Coordinator) ShardCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.units)
}

// Shards returns a snapshot of the coordinator's shard slice.
func (c *Coordinator) Shards() []Shard {
	c.mu.Lock()
	defer c.mu.Unlock()
	units := make([]Shard, len(c.units))
	copy(units, c.units)
	return units
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ Notifier = (*Coordinator)(nil)
