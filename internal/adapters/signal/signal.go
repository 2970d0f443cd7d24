package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Polyglot/internal/app/orch"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// SessionTargetKey is where the cookie session remembers the last target language.
const SessionTargetKey = "target_lang"

type StreamConfig struct {
	SendBuffer int
	// ReadLimit caps one inbound websocket message in bytes.
	ReadLimit  int64
	PingPeriod time.Duration
	// ControlLimit control messages are allowed per ControlWindow.
	ControlLimit  int
	ControlWindow time.Duration
}

type StreamController struct {
	Orch    *orch.Orchestrator
	Limiter *ControlRateLimiter
	cfg     StreamConfig
}

func NewStreamController(o *orch.Orchestrator, cfg StreamConfig) *StreamController {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.ControlLimit <= 0 {
		cfg.ControlLimit = 20
	}
	if cfg.ControlWindow <= 0 {
		cfg.ControlWindow = time.Second
	}
	return &StreamController{
		Orch:    o,
		Limiter: NewControlRateLimiter(cfg.ControlLimit, cfg.ControlWindow),
		cfg:     cfg,
	}
}

// WsConn is the websocket side of core.SignalConnection.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn, buffer int) *WsConn {
	return &WsConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 << 10,
	WriteBufferSize: 16 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type handshake struct {
	room   domain.RoomID
	target domain.Language
	source domain.Language
}

// parseHandshake validates the path and query before the upgrade so that a
// bad request gets a plain HTTP 400.
func parseHandshake(c *gin.Context) (handshake, string, error) {
	var h handshake
	room, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		return h, "bad_room", err
	}
	h.room = room

	raw := c.Query("target_lang")
	sess := sessions.Default(c)
	if raw == "" {
		if remembered, ok := sess.Get(SessionTargetKey).(string); ok {
			raw = remembered
		}
	}
	h.target = domain.DefaultLanguage
	if raw != "" {
		if h.target, err = domain.ParseLanguage(raw); err != nil {
			return h, orch.ErrCodeBadLanguage, err
		}
	}
	if raw := c.Query("source_lang"); raw != "" {
		if h.source, err = domain.ParseLanguage(raw); err != nil {
			return h, orch.ErrCodeBadLanguage, err
		}
	}

	sess.Set(SessionTargetKey, h.target.String())
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("save session")
	}
	return h, "", nil
}

func (ctl *StreamController) HandleStream(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	h, code, err := parseHandshake(c)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("ct", token).Str("room", c.Param("room")).Msg("bad handshake")
		c.JSON(http.StatusBadRequest, orch.NewError(code, err.Error()))
		return
	}

	// gorilla writes its own handshake response; carry the cookies over.
	header := http.Header{"Set-Cookie": c.Writer.Header().Values("Set-Cookie")}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	sid := core.SessionID(ulid.Make().String())
	conn := newWsConn(ws, ctl.cfg.SendBuffer)
	ms := core.NewMemberSession(sid, h.room, h.target, domain.NewParticipant(token, h.source), conn)

	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Connect(ms, cancel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("connect")
		cancel()
		ctl.closeWithError(ws, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("ct", token).Str("room", string(h.room)).
		Str("target", h.target.String()).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

// closeWithError answers a failed join before any pump is running.
func (ctl *StreamController) closeWithError(ws *websocket.Conn, err error) {
	code := "connect_failed"
	if errors.Is(err, orch.ErrClosed) {
		code = "shutting_down"
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteJSON(orch.NewError(code, err.Error()))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, code))
	_ = ws.Close()
}
