package orch

import (
	"encoding/json"

	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/rs/zerolog/log"
)

// Control message kinds carried in the "type" field of text frames.
const (
	MsgPing                  = "ping"
	MsgPong                  = "pong"
	MsgChangeLanguage        = "change_language"
	MsgFlush                 = "flush"
	MsgConnectionEstablished = "connection_established"
	MsgParticipantsUpdate    = "participants_update"
	MsgParticipantJoined     = "participant_joined"
	MsgParticipantLeft       = "participant_left"
	MsgLanguageChanged       = "language_changed"
	MsgTranslation           = "translation"
	MsgError                 = "error"
)

// Error codes sent in error messages.
const (
	ErrCodeBadPayload      = "bad_payload"
	ErrCodeUnknownType     = "unknown_type"
	ErrCodeBadLanguage     = "unsupported_language"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodePipelineFailed  = "pipeline_failed"
	ErrCodeSessionNotFound = "session_not_found"
)

type ConnectionEstablished struct {
	Type           string          `json:"type"`
	RoomID         domain.RoomID   `json:"room_id"`
	UserID         core.SessionID  `json:"user_id"`
	TargetLanguage domain.Language `json:"target_lang"`
	Mirror         bool            `json:"mirror"`
	Count          int             `json:"count"`
}

type ParticipantsUpdate struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ParticipantEvent struct {
	Type           string          `json:"type"`
	UserID         core.SessionID  `json:"user_id"`
	TargetLanguage domain.Language `json:"target_lang,omitempty"`
}

type LanguageChanged struct {
	Type           string          `json:"type"`
	TargetLanguage domain.Language `json:"target_lang"`
}

// Translation precedes the binary audio frame of the same result.
type Translation struct {
	Type           string          `json:"type"`
	From           core.SessionID  `json:"from"`
	Seq            uint64          `json:"seq"`
	SourceLanguage domain.Language `json:"source_lang,omitempty"`
	TargetLanguage domain.Language `json:"target_lang"`
	Transcript     string          `json:"transcript"`
	Text           string          `json:"text"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{Type: MsgError, Error: code, Message: message}
}

// EncodeFrame marshals v into a text frame.
func EncodeFrame(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode control message")
		return core.Frame{}, false
	}
	return core.Text(b), true
}
