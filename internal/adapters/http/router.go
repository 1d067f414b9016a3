package http

import (
	"context"
	"net/http"
	"slices"
	"sort"

	"github.com/dkeye/peercall/internal/adapters/signal"
	"github.com/dkeye/peercall/internal/app/orch"
	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName    = "PeercallSessions"
	clientTokenKey = "client_token"
	frameLimit     = 200
)

// ClientTokenMiddleware gives every browser or client a stable token kept in
// the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cors.New(cfg)
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
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		AllowedOrigins: cfg.AllowedOrigins,
		FrameLimit:     frameLimit,
	})

	r.POST("/create", func(c *gin.Context) {
		room := o.Rooms.Create()
		c.JSON(http.StatusOK, gin.H{"room_id": room.Room().ID})
	})

	r.GET("/join", func(c *gin.Context) {
		roomID := domain.RoomID(c.Query("roomID"))
		if err := roomID.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if room, ok := o.Rooms.Get(roomID); ok && room.Room().Capacity > 0 && room.MemberCount() >= room.Room().Capacity {
			c.JSON(http.StatusConflict, gin.H{"error": core.ErrRoomFull.Error()})
			return
		}
		ctrl.HandleJoin(ctx, c, roomID)
	})

	r.GET("/rooms", func(c *gin.Context) {
		rooms := o.Rooms.List()
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	r.GET("/rooms/:id", func(c *gin.Context) {
		room, ok := o.Rooms.Get(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":       room.Room().ID,
			"capacity": room.Room().Capacity,
			"members":  room.MembersSnapshot(),
		})
	})

	log.Info().Str("module", "adapters.http").Int("max_members", cfg.MaxMembers).Msg("router setup")
	return r
}
