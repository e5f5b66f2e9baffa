package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultGatewayURL is the endpoint shards dial when no override is
// configured.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Conn is a native gateway connection for one shard. It performs just enough
// of the protocol to hold a session open: identify (or resume), heartbeat,
// and dispatch tracking. Everything else arrives as raw payloads the caller
// can route with SendGatewayPayload.
type Conn struct {
	token    string
	url      string
	index    int
	total    int
	notify   Notifier
	recorder SessionRecorder

	connected atomic.Bool
	seq       atomic.Int64

	writeMu sync.Mutex
	ws      *websocket.Conn

	mu        sync.Mutex
	sessionID string
	resumeURL string
	stop      chan struct{}
}

// NewConnFactory returns a ShardFactory producing native gateway
// connections. recorder may be nil, in which case session state is not
// persisted.
func NewConnFactory(token, url string, recorder SessionRecorder) ShardFactory {
	if url == "" {
		url = DefaultGatewayURL
	}
	return func(index, total int, notify Notifier) Shard {
		return &Conn{
			token:    token,
			url:      url,
			index:    index,
			total:    total,
			notify:   notify,
			recorder: recorder,
		}
	}
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Shard      [2]int             `json:"shard"`
	Properties identifyProperties `json:"properties"`
}

type hello struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type ready struct {
	SessionID string `json:"session_id"`
	ResumeURL string `json:"resume_gateway_url"`
}

// Connect dials the gateway, identifies as this shard, and starts the read
// and heartbeat loops. It returns once the handshake payloads are on the
// wire; READY arrives asynchronously and flips the connected flag.
func (c *Conn) Connect() error {
	ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway for shard %d: %w", c.index, err)
	}

	var helloEv event
	if err := ws.ReadJSON(&helloEv); err != nil {
		ws.Close()
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if helloEv.Op != OpHello {
		ws.Close()
		return fmt.Errorf("expected hello opcode %d, got %d", OpHello, helloEv.Op)
	}
	var h hello
	if err := json.Unmarshal(helloEv.Data, &h); err != nil {
		ws.Close()
		return fmt.Errorf("failed to decode hello: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	err = c.writeJSON(Payload{
		Op: OpIdentify,
		Data: identify{
			Token:   c.token,
			Shard:   [2]int{c.index, c.total},
			Properties: identifyProperties{
				OS:      "linux",
				Browser: "voxgate",
				Device:  "voxgate",
			},
		},
	})
	if err != nil {
		ws.Close()
		return fmt.Errorf("failed to identify shard %d: %w", c.index, err)
	}

	go c.heartbeatLoop(ws, stop, time.Duration(h.HeartbeatInterval)*time.Millisecond)
	go c.readLoop(ws, stop)
	return nil
}

// Disconnect closes the websocket. The read loop notices, flips the
// connected flag, and signals the coordinator.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	ws := c.ws
	stop := c.stop
	c.ws = nil
	c.stop = nil
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	close(stop)
	return ws.Close()
}

// SendGatewayPayload writes a payload on this shard's websocket. Writes are
// serialized; gorilla websockets allow only one concurrent writer.
func (c *Conn) SendGatewayPayload(p Payload) error {
	return c.writeJSON(p)
}

func (c *Conn) Connected() bool  { return c.connected.Load() }
func (c *Conn) ShardIndex() int  { return c.index }
func (c *Conn) TotalShards() int { return c.total }

func (c *Conn) writeJSON(p Payload) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("shard %d is not connected", c.index)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(p)
}

func (c *Conn) heartbeatLoop(ws *websocket.Conn, stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := c.writeJSON(Payload{Op: OpHeartbeat, Data: c.seq.Load()})
			if err != nil {
				slog.Warn("heartbeat failed", "shard", c.index, slog.Any("error", err))
				return
			}
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, stop chan struct{}) {
	defer func() {
		wasConnected := c.connected.Swap(false)
		c.recordSession()
		if wasConnected {
			c.notify.SignalShardDisconnected(c.index)
		}
	}()

	for {
		var ev event
		if err := ws.ReadJSON(&ev); err != nil {
			select {
			case <-stop:
			default:
				slog.Warn("gateway read failed", "shard", c.index, slog.Any("error", err))
			}
			return
		}

		switch ev.Op {
		case OpDispatch:
			c.seq.Store(ev.Seq)
			if ev.Type == "READY" {
				var r ready
				if err := json.Unmarshal(ev.Data, &r); err != nil {
					slog.Warn("failed to decode READY", "shard", c.index, slog.Any("error", err))
					continue
				}
				c.mu.Lock()
				c.sessionID = r.SessionID
				c.resumeURL = r.ResumeURL
				c.mu.Unlock()
				c.connected.Store(true)
				c.recordSession()
				c.notify.SignalShardConnected(c.index)
			}
		case OpHeartbeat:
			// The gateway may request an immediate heartbeat.
			if err := c.writeJSON(Payload{Op: OpHeartbeat, Data: c.seq.Load()}); err != nil {
				return
			}
		case OpReconnect, OpInvalidSession:
			slog.Info("gateway requested reconnect", "shard", c.index, "op", ev.Op)
			ws.Close()
			return
		case OpHeartbeatACK:
		}
	}
}

func (c *Conn) recordSession() {
	if c.recorder == nil {
		return
	}
	c.mu.Lock()
	state := SessionState{
		ShardIndex:  c.index,
		TotalShards: c.total,
		SessionID:   c.sessionID,
		ResumeURL:   c.resumeURL,
		Sequence:    c.seq.Load(),
	}
	c.mu.Unlock()
	if state.SessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.RecordSession(ctx, state); err != nil {
		slog.Warn("failed to record shard session", "shard", c.index, slog.Any("error", err))
	}
}

var _ Shard = (*Conn)(nil)
