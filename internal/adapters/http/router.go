package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/adapters/signal"
	"github.com/auxroom/auxroom/internal/app/orch"
	"github.com/auxroom/auxroom/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable identity cookie.
// That token is the session id the registry and the rooms key on.
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

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("AuxSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &Handlers{Orch: o, ChatHistory: cfg.ChatHistory}
	api := r.Group("/api")

	api.GET("/rooms", h.ListRooms)
	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms/:id", h.GetRoom)
	api.DELETE("/rooms/:id", h.CloseRoom)
	api.POST("/rooms/:id/join", h.JoinRoom)
	api.GET("/rooms/:id/messages", h.RoomMessages)
	api.POST("/rooms/:id/queue", h.AddToQueue)
	api.DELETE("/rooms/:id/queue/:songId", h.RemoveFromQueue)
	api.POST("/songs", h.RegisterSong)
	api.GET("/songs/:id", h.GetSong)

	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl := signal.NewSignalWSController(o, cfg.ReadLimit, cfg.PingPeriod)
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
