package signal

import (
	"encoding/json"

	"github.com/dkeye/Polyglot/internal/app/orch"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *StreamController) handlePing(conn *WsConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: orch.MsgPong,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *StreamController) handleChangeLanguage(sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		TargetLang string `json:"target_lang"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad change_language payload")
		ctl.sendJSON(conn, orch.NewError(orch.ErrCodeBadPayload, ""))
		return
	}
	if _, err := ctl.Orch.ChangeLanguage(sid, p.TargetLang); err != nil {
		ctl.sendJSON(conn, orch.NewError(orch.ErrCodeBadLanguage, err.Error()))
	}
}

func (ctl *StreamController) handleFlush(sid core.SessionID, conn *WsConn) {
	if err := ctl.Orch.Flush(sid); err != nil {
		ctl.sendJSON(conn, orch.NewError(orch.ErrCodeSessionNotFound, err.Error()))
	}
}
