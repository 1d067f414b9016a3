// Package channel is the participant side of the signaling relay: one
// websocket per room membership carrying JSON envelopes.
package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	outgoingBuffer = 64
)

type Options struct {
	URL              string
	ReadLimit        int64
	PingPeriod       time.Duration
	HandshakeTimeout time.Duration
}

func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

// Client is a core.SignalChannel over a gorilla websocket.
type Client struct {
	conn     *websocket.Conn
	opts     Options
	outgoing chan core.Frame
	done     chan struct{}
	// closed is set once the channel stops carrying envelopes for any
	// reason; closing only by Close.
	closed  atomic.Bool
	closing atomic.Bool
	once    sync.Once
	listen  sync.Once
	logger  zerolog.Logger
}

var _ core.SignalChannel = (*Client)(nil)

// Dial opens the websocket and starts the write pump. Inbound delivery starts
// with Listen.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, core.NewError(core.ErrConnection, "dial "+opts.URL, err)
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}

	c := &Client{
		conn:     conn,
		opts:     opts,
		outgoing: make(chan core.Frame, outgoingBuffer),
		done:     make(chan struct{}),
		logger:   log.With().Str("module", "channel").Str("url", opts.URL).Logger(),
	}
	go c.writePump()
	c.logger.Info().Msg("connected")
	return c, nil
}

// Listen delivers inbound envelopes to onMessage, one at a time and in
// arrival order, from a single goroutine. onClose fires once when the
// connection ends; err is nil after a local Close.
func (c *Client) Listen(onMessage func(core.Envelope), onClose func(error)) {
	c.listen.Do(func() {
		go c.readPump(onMessage, onClose)
	})
}

func (c *Client) readPump(onMessage func(core.Envelope), onClose func(error)) {
	var readErr error
	defer func() {
		_ = c.Close()
		if onClose != nil {
			onClose(readErr)
		}
	}()

	pongWait := c.opts.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				readErr = core.NewError(core.ErrConnection, "read", err)
				c.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := core.DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}
		if onMessage != nil {
			onMessage(env)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				c.closed.Store(true)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("writePump ping error")
				c.closed.Store(true)
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes envelopes queued before Close so a final send is not lost.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send enqueues env. After Close it is dropped without error.
func (c *Client) Send(env core.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if c.closed.Load() {
		c.logger.Debug().Str("kind", env.Kind().String()).Msg("send on closed channel dropped")
		return nil
	}
	select {
	case c.outgoing <- data:
	case <-c.done:
		c.logger.Debug().Str("kind", env.Kind().String()).Msg("send on closed channel dropped")
	}
	return nil
}

func (c *Client) Closed() bool { return c.closed.Load() }

// Close is idempotent.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.closing.Store(true)
		c.closed.Store(true)
		close(c.done)
		c.logger.Info().Msg("closed")
	})
	return nil
}
