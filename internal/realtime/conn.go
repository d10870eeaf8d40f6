package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"escoresheet/match-relay/internal/relay"
	"escoresheet/match-relay/pkg/log"
	"escoresheet/match-relay/pkg/uid"
)

// Options tunes every connection the Handler accepts.
type Options struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 2
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	return o
}

// Conn is one scoresheet or dashboard websocket. It implements
// relay.Client: the relay enqueues frames with Send and writeLoop is the
// only goroutine that writes to the socket.
type Conn struct {
	id     string
	remote string
	ws     *websocket.Conn
	relay  *relay.Relay
	opts   Options

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) ID() string { return c.id }

// Send queues frame without blocking. A full queue means the peer is not
// keeping up; the relay drops it.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return relay.ErrClientClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return relay.ErrSlowClient
	}
}

// Close stops the write loop, which closes the socket. Safe to call from
// any goroutine, any number of times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ----------------------------------------------------------
// private loops
// ----------------------------------------------------------

func (c *Conn) readLoop() {
	defer func() {
		c.relay.Unregister(c)
		c.Close()
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				log.Logger.Warn().Str("client_id", c.id).Int64("limit", c.opts.MaxMessageBytes).Msg("ws frame too large, closing")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
				log.Logger.Debug().Err(err).Str("client_id", c.id).Msg("ws read ended")
			}
			return
		}
		// Any frame proves the peer is alive, not only pongs.
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		c.relay.HandleMessage(c, msg)
	}
}

func (c *Conn) writeLoop() {
	tick := time.NewTicker(c.opts.PingInterval)
	defer func() {
		tick.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}

		case <-tick.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}

// flush writes whatever is still queued when the connection is closed
// locally, so a final notice is not lost.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if c.ws.WriteMessage(websocket.TextMessage, msg) != nil {
				return
			}
		default:
			return
		}
	}
}

// ------------------------------------------------------------------
// Helper – called from the HTTP upgrader
// ------------------------------------------------------------------

func NewConn(ws *websocket.Conn, rl *relay.Relay, remote string, opts Options) *Conn {
	opts = opts.withDefaults()
	conn := &Conn{
		id:     uid.ClientID(),
		remote: remote,
		ws:     ws,
		relay:  rl,
		opts:   opts,
		out:    make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}

	go conn.writeLoop()
	rl.Register(conn) // queues the greeting
	go conn.readLoop()

	return conn
}
