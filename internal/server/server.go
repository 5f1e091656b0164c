package server

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"invite-engine/internal/invites"
	"invite-engine/internal/storage"
)

// Config carries the HTTP-surface settings.
type Config struct {
	VerifyToken        string
	DefaultCountryCode string
}

// Server is the invitation API server: direct send endpoints, the
// provider webhook endpoints and a minimal event/guest admin surface.
type Server struct {
	svc    *invites.Service
	store  *storage.Storage
	cfg    Config
	router *gin.Engine
	log    zerolog.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(svc *invites.Service, store *storage.Storage, cfg Config) *Server {
	router := gin.Default()

	s := &Server{
		svc:    svc,
		store:  store,
		cfg:    cfg,
		router: router,
		log:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "server").Logger(),
	}

	inv := router.Group("/invitations")
	{
		inv.POST("/send", s.handleSend)
		inv.POST("/send-bulk", s.handleSendBulk)
	}

	hooks := router.Group("/webhooks")
	{
		hooks.GET("/verify", s.handleVerify)
		hooks.POST("/status", s.handleStatusWebhook)
		hooks.POST("/message", s.handleMessageWebhook)
	}

	evts := router.Group("/events")
	{
		evts.POST("", s.handleCreateEvent)
		evts.POST("/:id/guests", s.handleCreateGuest)
		evts.GET("/:id/guests", s.handleListGuests)
	}

	return s
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
