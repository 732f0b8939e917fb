package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/capture"
	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/health"
	"github.com/energizer-project/combatlens/internal/modules"
	intnet "github.com/energizer-project/combatlens/internal/network"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/state"
	"github.com/energizer-project/combatlens/internal/tracker"
)

// StatsSource is the live combat state read and controlled by the API.
type StatsSource interface {
	AllUsersSummary() map[uint64]session.UserSummary
	UserSkills(uid uint64) (state.UserReport, bool)
	AllEnemies() map[uint64]state.EnemyInfo
	UserIDs() []uint64
	CurrentSession() state.SessionInfo
	ClearAll(persist bool) (bool, error)
	Paused() bool
	SetPaused(paused bool)
}

// InstanceSource reports the instance tracker state.
type InstanceSource interface {
	Status() tracker.Status
}

// LoadoutSource returns the last module loadout seen for a player.
type LoadoutSource interface {
	Get(uid uint64) (modules.Loadout, bool)
}

// PipelineSource reports decode pipeline counters.
type PipelineSource interface {
	Stats() capture.Stats
}

// DecoderSource reports payload decode outcomes.
type DecoderSource interface {
	Decoded() uint64
	Failures() uint64
}

// HealthSource reports the latest health check results.
type HealthSource interface {
	Status() map[string]health.Result
}

// Deps are the collaborators served by the API. Everything but Stats may
// be nil.
type Deps struct {
	Stats    StatsSource
	Sessions session.Store
	Modules  LoadoutSource
	Tracker  InstanceSource
	Pipeline PipelineSource
	Health   HealthSource
	Decoder  DecoderSource
	Version  string
}

// Server is the local read API of combatlens.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps
	hub      *Hub

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, hub *Hub, deps Deps) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		hub:      hub,
	}
}

// Handler returns the router, building it on first use.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.router = s.buildRouter()
	}
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	addr := fmt.Sprintf("127.0.0.1:%d", apiCfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetAPI()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(apiCfg.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/system", s.handleSystem)

		api.GET("/data", s.handleData)
		api.GET("/enemies", s.handleEnemies)
		api.GET("/users", s.handleUsers)
		api.GET("/skill/:uid", s.handleSkill)
		api.GET("/modules/:uid", s.handleModules)

		api.POST("/clear", s.handleClear)
		api.GET("/pause", s.handleGetPause)
		api.POST("/pause", s.handleSetPause)

		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:id", s.handleGetSession)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
		api.GET("/history/:uid", s.handleHistory)

		api.GET("/config", s.handleGetConfig)
		api.PUT("/config/engine", s.handleSetEngine)

		api.GET("/ws", gin.WrapF(s.hub.ServeWS))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "combatlens API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.hub.Close()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
