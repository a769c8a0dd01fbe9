// Package gateway accepts WebSocket clients and runs their receive loops.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
)

// Config holds the gateway's transport settings
type Config struct {
	AuthGrace       time.Duration
	ReadTimeout     time.Duration // extended by every message and pong
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	RateLimit       float64 // inbound messages per second
	RateBurst       int
	AllowedOrigins  []string // empty allows any origin
}

// DefaultConfig returns the gateway defaults
func DefaultConfig() Config {
	return Config{
		AuthGrace:       5 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		PingInterval:    25 * time.Second,
		SendBuffer:      256,
		MaxMessageBytes: 64 * 1024,
		RateLimit:       50,
		RateBurst:       100,
	}
}

// Handler receives connection lifecycle callbacks and decoded messages.
//
// OnMessage is called from the connection's receive loop, one message at a
// time. OnDisconnect is called exactly once per connection, after which the
// connection accepts no more sends.
type Handler interface {
	OnConnect(c *Connection)
	OnMessage(c *Connection, msg protocol.Inbound)
	OnDisconnect(c *Connection, reason string)
}

// Gateway is the http.Handler that upgrades clients and owns the connection table
type Gateway struct {
	config   Config
	handler  Handler
	clock    clock.Clock
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[string]*Connection
	wg      sync.WaitGroup
	closing atomic.Bool
}

// New creates a gateway delivering messages to handler
func New(cfg Config, handler Handler, clock clock.Clock, collector *metrics.Collector, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config:  cfg,
		handler: handler,
		clock:   clock,
		metrics: collector,
		logger:  logger.With(slog.String("component", "gateway")),
		conns:   make(map[string]*Connection),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non-browser clients do not send an origin
	if origin == "" {
		return true
	}
	return slices.Contains(g.config.AllowedOrigins, origin) || slices.Contains(g.config.AllowedOrigins, "*")
}

// ServeHTTP upgrades the request and starts the connection's pumps
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error
		g.logger.Debug("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newConnection(g, ws)
	g.mu.Lock()
	g.conns[c.id] = c
	g.wg.Add(1)
	g.mu.Unlock()

	g.metrics.ConnectionOpened()
	c.logger.Info("connection opened", slog.String("remote_addr", c.RemoteAddr()))

	c.startAuthTimer(g.config.AuthGrace)
	g.safeCall(c, "connect", func() { g.handler.OnConnect(c) })
	_ = c.Send(protocol.Welcome(c.id, c.AuthDeadline(), g.clock.Now()))

	go c.writePump()
	go c.heartbeat()
	go c.readPump()
}

// dispatch hands a decoded message to the handler, containing any panic to
// this one message
func (g *Gateway) dispatch(c *Connection, msg protocol.Inbound) {
	ok := g.safeCall(c, string(msg.MessageType()), func() { g.handler.OnMessage(c, msg) })
	if !ok {
		c.sendError(model.ErrInternal)
	}
}

func (g *Gateway) safeCall(c *Connection, what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic",
				slog.String("callback", what),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			ok = false
		}
	}()
	fn()
	return true
}

// release removes a finished connection and reports the disconnect
func (g *Gateway) release(c *Connection) {
	defer g.wg.Done()

	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()

	reason := c.CloseReason()
	g.safeCall(c, "disconnect", func() { g.handler.OnDisconnect(c, reason) })
	g.metrics.ConnectionClosed()
	c.logger.Info("connection closed",
		slog.String("reason", reason),
		slog.String("player_id", string(c.PlayerID())))
}

// Connection returns the open connection with the given id
func (g *Gateway) Connection(id string) (*Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.conns[id]
	return c, ok
}

// Connections returns a snapshot of the open connections
func (g *Gateway) Connections() []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of open connections
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// IdleSince returns open connections whose last inbound message predates cutoff
func (g *Gateway) IdleSince(cutoff time.Time) []*Connection {
	return slices.DeleteFunc(g.Connections(), func(c *Connection) bool {
		return c.Closed() || !c.LastActive().Before(cutoff)
	})
}

// CloseAll stops accepting clients, gracefully closes every connection and
// waits for their disconnects to be handled
func (g *Gateway) CloseAll(ctx context.Context, reason string) error {
	g.closing.Store(true)
	for _, c := range g.Connections() {
		c.Close(reason)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, c := range g.Connections() {
			c.abort(reason)
		}
		return ctx.Err()
	}
}
