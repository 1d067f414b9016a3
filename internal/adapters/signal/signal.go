// Package signal is the relay side of the signaling websocket: one
// connection per room member, frames fanned out by the orchestrator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/app/orch"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

const sendBuffer = 32

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	AllowedOrigins []string
	// FrameLimit caps frames per member per second; zero disables it.
	FrameLimit int
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	upgrader websocket.Upgrader
	limiter  *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	ctl := &SignalWSController{Orch: o, opts: opts}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	if opts.FrameLimit > 0 {
		ctl.limiter = NewRoomRateLimiter(opts.FrameLimit, time.Second)
	}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(ctl.opts.AllowedOrigins) == 0 || slices.Contains(ctl.opts.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(ctl.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// WsSignalConn is a core.SignalConnection over one relay websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, sendBuffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// HandleJoin upgrades the request and admits the connection into roomID.
// A full room is answered with a close frame.
func (ctl *SignalWSController) HandleJoin(ctx context.Context, c *gin.Context, roomID domain.RoomID) {
	sid := core.SessionID(uuid.NewString())
	member := domain.MemberID(c.GetString("client_token"))
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Logger()

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := newWsSignalConn(ws)
	sess := core.NewMemberSession(domain.NewMember(member), conn)
	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Join(sid, roomID, sess, cancel); err != nil {
		cancel()
		logger.Warn().Err(err).Msg("join rejected")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	logger.Info().Str("member", string(member)).Msg("new WS connection")

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, sid, conn)
}
