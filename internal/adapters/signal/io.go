package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Polyglot/internal/app/orch"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *StreamController) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case f, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			mt := websocket.TextMessage
			if f.Kind == core.BinaryFrame {
				mt = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(mt, f.Data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *StreamController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		ctl.Orch.Disconnect(sid)
		ctl.Limiter.Forget(sid)
		c.Close()
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			if err := ctl.Orch.Ingest(ctx, sid, data); err != nil {
				if errors.Is(err, orch.ErrSessionClosed) {
					return
				}
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ingest")
				ctl.sendJSON(c, orch.NewError(orch.ErrCodeBadPayload, err.Error()))
			}
		case websocket.TextMessage:
			ctl.handleControl(sid, c, data)
		}
	}
}

func (ctl *StreamController) handleControl(sid core.SessionID, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendJSON(c, orch.NewError(orch.ErrCodeBadPayload, "expected a JSON object with a type"))
		return
	}
	if !ctl.Limiter.Allow(sid) {
		ctl.sendJSON(c, orch.NewError(orch.ErrCodeRateLimited, ""))
		return
	}

	switch env.Type {
	case orch.MsgPing:
		ctl.handlePing(c)
	case orch.MsgPong:
	case orch.MsgChangeLanguage:
		ctl.handleChangeLanguage(sid, c, data)
	case orch.MsgFlush:
		ctl.handleFlush(sid, c)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown signal")
		ctl.sendJSON(c, orch.NewError(orch.ErrCodeUnknownType, env.Type))
	}
}

func (ctl *StreamController) sendJSON(c *WsConn, v any) {
	f, ok := orch.EncodeFrame(v)
	if !ok {
		return
	}
	if err := c.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON")
	}
}
