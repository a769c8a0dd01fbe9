package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
)

// Close reasons reported to the handler and written into the close frame
const (
	ReasonClientClosed = "client closed"
	ReasonAuthTimeout  = "authentication timeout"
	ReasonSlowConsumer = "slow consumer"
	ReasonReplaced     = "session replaced"
	ReasonIdle         = "idle timeout"
	ReasonShutdown     = "server shutting down"
	ReasonWriteFailed  = "write failed"
	ReasonHeartbeat    = "heartbeat timeout"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

// Connection is one upgraded WebSocket client.
//
// Outbound messages go through a FIFO queue drained by a single writer
// goroutine, so the order in which Send is called is the order the client
// receives messages. Send never blocks: a client that cannot keep up is
// disconnected rather than having messages dropped.
type Connection struct {
	id     string
	gw     *Gateway
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu  sync.Mutex
	sendMu   sync.Mutex
	sendChan chan []byte

	closed      atomic.Bool
	closeReason atomic.Value // string
	ctx         context.Context
	cancel      context.CancelFunc
	lastActive  atomic.Value // time.Time
	limiter     *rate.Limiter

	authMu        sync.Mutex
	authenticated bool
	authExpired   bool
	playerID      model.PlayerID
	authTimer     *time.Timer
	authDeadline  time.Time
}

func newConnection(gw *Gateway, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       uuid.New().String(),
		gw:       gw,
		conn:     conn,
		sendChan: make(chan []byte, gw.config.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
		limiter:  rate.NewLimiter(rate.Limit(gw.config.RateLimit), gw.config.RateBurst),
	}
	c.logger = gw.logger.With(slog.String("connection_id", c.id))
	c.closeReason.Store("")
	c.lastActive.Store(gw.clock.Now())
	return c
}

// ID returns the connection id
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the peer address
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// LastActive returns when the last inbound message arrived
func (c *Connection) LastActive() time.Time {
	return c.lastActive.Load().(time.Time)
}

// Closed reports whether Close has been called
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// CloseReason returns the reason passed to the first Close call
func (c *Connection) CloseReason() string {
	return c.closeReason.Load().(string)
}

// AuthDeadline returns when an unauthenticated connection will be closed
func (c *Connection) AuthDeadline() time.Time {
	return c.authDeadline
}

// Authenticate binds the connection to a player. It returns false if the
// authentication grace window has already expired.
func (c *Connection) Authenticate(playerID model.PlayerID) bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authExpired {
		return false
	}
	c.authenticated = true
	c.playerID = playerID
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	return true
}

// Authenticated reports whether a player is bound to the connection
func (c *Connection) Authenticated() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authenticated
}

// PlayerID returns the bound player, or "" before authentication
func (c *Connection) PlayerID() model.PlayerID {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.playerID
}

// Send enqueues an envelope for delivery
func (c *Connection) Send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	err = c.enqueue(data)
	if errors.Is(err, ErrSendQueueFull) {
		c.logger.Warn("send queue full, disconnecting", slog.Int("queue_size", cap(c.sendChan)))
		c.abort(ReasonSlowConsumer)
	}
	return err
}

func (c *Connection) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.Closed() {
		return ErrConnectionClosed
	}
	select {
	case c.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// sendError reports err to this connection only
func (c *Connection) sendError(err error) {
	c.gw.metrics.ClientError(model.CodeOf(err))
	_ = c.Send(protocol.ErrorFrom(err, c.gw.clock.Now()))
}

// Close flushes everything already queued, then sends a close frame carrying
// reason and tears the connection down. Only the first call has any effect.
func (c *Connection) Close(reason string) {
	c.shutdown(reason, true)
}

// abort closes without flushing the send queue
func (c *Connection) abort(reason string) {
	c.shutdown(reason, false)
}

func (c *Connection) shutdown(reason string, flush bool) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.closeReason.Store(reason)

	c.authMu.Lock()
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	c.authMu.Unlock()

	c.sendMu.Lock()
	close(c.sendChan)
	c.sendMu.Unlock()

	if !flush {
		c.cancel()
	}
}

func (c *Connection) startAuthTimer(grace time.Duration) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.authDeadline = c.gw.clock.Now().Add(grace)
	c.authTimer = time.AfterFunc(grace, c.expireAuth)
}

func (c *Connection) expireAuth() {
	c.authMu.Lock()
	if c.authenticated {
		c.authMu.Unlock()
		return
	}
	c.authExpired = true
	c.authMu.Unlock()

	c.logger.Info("authentication grace expired")
	c.sendError(model.ErrAuthenticationTimeout)
	c.Close(ReasonAuthTimeout)
}

// readPump runs the receive loop until the peer goes away or the connection
// is closed, then reports the disconnect exactly once.
func (c *Connection) readPump() {
	defer c.gw.release(c)
	defer c.abort(ReasonClientClosed)

	cfg := c.gw.config
	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && !c.Closed() {
				c.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		c.lastActive.Store(c.gw.clock.Now())

		if msgType != websocket.TextMessage {
			c.sendError(model.ErrMalformedMessage)
			continue
		}
		if !c.limiter.Allow() {
			c.sendError(model.ErrRateLimited)
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debug("rejected inbound message", slog.String("error", err.Error()))
			c.sendError(err)
			continue
		}
		c.gw.dispatch(c, msg)
	}
}

// writePump drains the send queue. When the queue is closed it writes the
// close frame and closes the socket.
func (c *Connection) writePump() {
	defer c.cancel()
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case <-c.ctx.Done():
			c.writeClose()
			return
		case data, ok := <-c.sendChan:
			if !ok {
				c.writeClose()
				return
			}
			if err := c.write(data); err != nil {
				c.logger.Info("write failed", slog.String("error", err.Error()))
				c.abort(ReasonWriteFailed)
				return
			}
		}
	}
}

// heartbeat pings the peer so that dead connections hit the read deadline
func (c *Connection) heartbeat() {
	ticker := time.NewTicker(c.gw.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.Closed() {
				return
			}
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				c.abort(ReasonHeartbeat)
				return
			}
		}
	}
}

func (c *Connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) writeControl(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(msgType, data, time.Now().Add(c.gw.config.WriteTimeout))
}

func (c *Connection) writeClose() {
	code := websocket.CloseNormalClosure
	reason := c.CloseReason()
	switch reason {
	case ReasonShutdown:
		code = websocket.CloseGoingAway
	case ReasonAuthTimeout, ReasonReplaced:
		code = websocket.ClosePolicyViolation
	case ReasonSlowConsumer:
		code = websocket.CloseTryAgainLater
	}
	_ = c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
