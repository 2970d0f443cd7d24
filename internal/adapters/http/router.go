package http

import (
	"context"

	"github.com/dkeye/Polyglot/internal/adapters/signal"
	"github.com/dkeye/Polyglot/internal/app/orch"
	"github.com/dkeye/Polyglot/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware tags every browser with a long-lived "ct" cookie.
// The token only correlates logs across reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires REST, the streaming endpoint and /metrics.
// gatherer may be nil to serve the default registry.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PolyglotSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: o}
	api := r.Group("/api")
	api.GET("/health", h.health)
	api.GET("/rooms", h.listRooms)
	api.POST("/rooms", h.createRoom)
	api.GET("/rooms/:room", h.room)
	api.GET("/rooms/:room/participants", h.participants)
	api.DELETE("/rooms/:room", h.evictRoom)
	api.GET("/mirror", h.getMirror)
	api.POST("/mirror", h.setMirror)
	api.GET("/languages", h.languages)
	api.POST("/translate", h.translate)

	stream := signal.NewStreamController(o, signal.StreamConfig{
		SendBuffer:    cfg.Stream.SendBuffer,
		ReadLimit:     cfg.ReadLimit,
		PingPeriod:    cfg.PingPeriod,
		ControlLimit:  cfg.Stream.ControlLimit,
		ControlWindow: cfg.Stream.ControlWindow,
	})
	r.GET("/ws/:room", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Str("room", c.Param("room")).Msg("ws endpoint hit")
		stream.HandleStream(ctx, c)
	})

	if gatherer == nil {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
