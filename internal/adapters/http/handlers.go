package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Polyglot/internal/app/orch"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

type CreateRoomResponse struct {
	RoomID domain.RoomID `json:"room_id"`
}

type ParticipantsResponse struct {
	RoomID domain.RoomID `json:"room_id"`
	Count  int           `json:"count"`
}

type MirrorRequest struct {
	Enabled *bool `json:"enabled"`
}

type MirrorResponse struct {
	Enabled bool `json:"enabled"`
}

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type TranslateResponse struct {
	TranslatedText string          `json:"translated_text"`
	SourceLang     domain.Language `json:"source_lang"`
	TargetLang     domain.Language `json:"target_lang"`
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, orch.NewError(code, msg))
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.orch.Registry.Count(),
		"rooms":    len(h.orch.ListRooms()),
		"mirror":   h.orch.Mirror(),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.ListRooms()})
}

func (h *handlers) createRoom(c *gin.Context) {
	c.JSON(http.StatusOK, CreateRoomResponse{RoomID: h.orch.CreateRoom()})
}

func (h *handlers) participants(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		badRequest(c, "bad_room", err.Error())
		return
	}
	c.JSON(http.StatusOK, ParticipantsResponse{RoomID: id, Count: h.orch.ParticipantCount(id)})
}

func (h *handlers) room(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		badRequest(c, "bad_room", err.Error())
		return
	}
	members, ok := h.orch.RoomMembers(id)
	if !ok {
		c.JSON(http.StatusNotFound, orch.NewError("room_not_found", string(id)))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id, "count": len(members), "members": members})
}

func (h *handlers) evictRoom(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		badRequest(c, "bad_room", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": id, "kicked": h.orch.EvictRoom(id)})
}

func (h *handlers) getMirror(c *gin.Context) {
	c.JSON(http.StatusOK, MirrorResponse{Enabled: h.orch.Mirror()})
}

func (h *handlers) setMirror(c *gin.Context) {
	var req MirrorRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		badRequest(c, orch.ErrCodeBadPayload, "expected {\"enabled\": bool}")
		return
	}
	enabled := h.orch.SetMirror(*req.Enabled)
	log.Info().Str("module", "adapters.http").Bool("mirror", enabled).Msg("mirror toggled over api")
	c.JSON(http.StatusOK, MirrorResponse{Enabled: enabled})
}

func (h *handlers) languages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": domain.SupportedLanguages()})
}

func (h *handlers) translate(c *gin.Context) {
	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		badRequest(c, orch.ErrCodeBadPayload, "missing or invalid text")
		return
	}
	source, err := domain.ParseLanguage(req.SourceLang)
	if err != nil {
		badRequest(c, orch.ErrCodeBadLanguage, "source_lang: "+err.Error())
		return
	}
	target, err := domain.ParseLanguage(req.TargetLang)
	if err != nil {
		badRequest(c, orch.ErrCodeBadLanguage, "target_lang: "+err.Error())
		return
	}

	out, err := h.orch.Pipeline.TranslateText(c.Request.Context(), req.Text, source, target)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("translate")
		msg := orch.NewError(orch.ErrCodePipelineFailed, err.Error())
		var pe *pipeline.PipelineError
		if errors.As(err, &pe) {
			msg.Stage = string(pe.Stage)
		}
		c.JSON(http.StatusBadGateway, msg)
		return
	}
	c.JSON(http.StatusOK, TranslateResponse{TranslatedText: out, SourceLang: source, TargetLang: target})
}
