package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"starlane/engine/internal/config"
	"starlane/engine/internal/engine"
	"starlane/engine/internal/intake"
	"starlane/engine/internal/logging"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// client is one websocket session bound to a room seat.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	id       string
	playerID int
	room     *Room
}

// BrokerOption customises broker construction.
type BrokerOption func(*Broker)

// Broker accepts websocket sessions and routes decoded commands into rooms.
type Broker struct {
	cfg             *config.Config
	log             *logging.Logger
	rooms           *roomRegistry
	gate            *intake.Gate
	upgrader        websocket.Upgrader
	wsAuthenticator websocketAuthenticator
	started         time.Time
	startupErr      error

	mu      sync.Mutex
	pending int
	clients atomic.Int64
}

// NewBroker wires the room registry and intake gate behind a websocket endpoint.
func NewBroker(cfg *config.Config, log *logging.Logger, opts ...BrokerOption) (*Broker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if log == nil {
		log = logging.L()
	}

	b := &Broker{
		cfg:   cfg,
		log:   log,
		rooms: newRoomRegistry(cfg, log),
		gate: intake.NewGate(intake.Config{
			MaxAge: 5 * time.Second,
			Rate:   cfg.CommandRate,
			Burst:  cfg.CommandBurst,
		}, log),
		wsAuthenticator: allowAllAuthenticator{},
		started:         time.Now(),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     b.checkOrigin,
	}

	//1.- HMAC auth is enabled the moment a shared secret is configured.
	if cfg.AuthSecret != "" {
		authenticator, err := newHMACWebsocketAuthenticator(cfg.AuthSecret)
		if err != nil {
			return nil, err
		}
		b.wsAuthenticator = authenticator
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

func (b *Broker) checkOrigin(r *http.Request) bool {
	if len(b.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range b.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Rooms exposes the registry for the operational HTTP handlers.
func (b *Broker) Rooms() *roomRegistry { return b.rooms }

// Gate exposes the intake gate for the operational HTTP handlers.
func (b *Broker) Gate() *intake.Gate { return b.gate }

// SnapshotClientCounts implements httpapi.ReadinessProvider.
func (b *Broker) SnapshotClientCounts() (clients, pending int) {
	b.mu.Lock()
	pending = b.pending
	b.mu.Unlock()
	return int(b.clients.Load()), pending
}

// StartupError implements httpapi.ReadinessProvider.
func (b *Broker) StartupError() error { return b.startupErr }

// Uptime implements httpapi.ReadinessProvider.
func (b *Broker) Uptime() time.Duration { return time.Since(b.started) }

// ServeWS upgrades the connection, seats the player, and starts both pumps.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.pending++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.pending--
		b.mu.Unlock()
	}()

	subject, err := b.wsAuthenticator.Authenticate(r)
	if err != nil {
		b.log.Warn("websocket auth rejected",
			logging.String("remote_addr", r.RemoteAddr),
			logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomName := strings.TrimSpace(r.URL.Query().Get("room"))
	playerName := strings.TrimSpace(r.URL.Query().Get("name"))
	if playerName == "" {
		playerName = subject
	}
	if playerName == "" {
		playerName = "commander"
	}

	room, err := b.rooms.GetOrCreate(roomName)
	if err != nil {
		b.log.Error("room create failed", logging.Error(err))
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	conn.SetReadLimit(b.cfg.MaxPayloadBytes)

	c := &client{conn: conn, send: make(chan []byte, 256), room: room}

	playerID, err := room.Join(c, playerName)
	if err != nil {
		b.log.Warn("join rejected", logging.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	c.playerID = playerID
	c.id = fmt.Sprintf("%s#%d", room.name, playerID)
	b.clients.Add(1)
	b.log.Info("client joined",
		logging.String("client_id", c.id),
		logging.String("player", playerName))

	go b.writePump(c)
	go b.readPump(c)
}

// readPump decodes envelopes, applies the intake gate, and submits commands.
func (b *Broker) readPump(c *client) {
	defer func() {
		c.room.Leave(c, c.playerID)
		b.gate.Forget(c.id)
		b.clients.Add(-1)
		c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn("read error", logging.String("client_id", c.id), logging.Error(err))
			}
			return
		}
		b.handleMessage(c, raw)
	}
}

func (b *Broker) handleMessage(c *client, raw []byte) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.replyError(c, commandError{Reason: "malformed", Detail: err.Error()})
		return
	}

	//1.- The lobby start control short-circuits before command decoding.
	if env.Command.Type == "start" {
		c.room.StartMatch()
		return
	}

	//2.- Sequence, freshness, and throughput checks come before any game logic.
	frame := intake.Frame{ClientID: c.id, SequenceID: env.SequenceID}
	if env.SentAtMs > 0 {
		frame.SentAt = time.UnixMilli(env.SentAtMs)
	}
	if decision := b.gate.Evaluate(frame); !decision.Accepted {
		b.replyError(c, commandError{
			Command: env.Command.Type,
			Reason:  decision.Reason.String(),
			Tick:    c.room.engine.World().Tick(),
		})
		return
	}

	cmd, err := decodeCommand(c.playerID, env)
	if err != nil {
		b.replyError(c, commandError{Command: env.Command.Type, Reason: "malformed", Detail: err.Error()})
		return
	}
	if err := c.room.Submit(cmd); err != nil {
		reason := "queue_full"
		if errors.Is(err, engine.ErrGameOver) {
			reason = "game_over"
		}
		b.replyError(c, commandError{Command: env.Command.Type, Reason: reason, Tick: c.room.engine.World().Tick()})
	}
}

func (b *Broker) replyError(c *client, msg commandError) {
	c.room.sendTo(c, serverMessage{Type: "error", Data: msg})
}

// writePump drains the send channel and keeps the connection alive with pings.
func (b *Broker) writePump(c *client) {
	interval := b.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close stops every room and releases their resources.
func (b *Broker) Close() {
	b.rooms.Close()
}
