// Package relay is the chat server the core talks to: a gin router with the
// account and conversation endpoints, message history, and the per
// conversation websocket hub.
package relay

import (
	"log/slog"

	"github.com/ageniuscoder/mmchat/chatcore/internal/auth"
	"github.com/ageniuscoder/mmchat/chatcore/internal/config"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
)

type Server struct {
	Store           *storage.Store
	Hub             *Hub
	Log             *slog.Logger
	JWTSecret       string
	JWTTTLMin       int
	MaxGroupMembers int
	InboundRate     float64
	InboundBurst    int
}

func NewServer(cfg config.Config, store *storage.Store, hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		Store:           store,
		Hub:             hub,
		Log:             log.With("component", "relay"),
		JWTSecret:       cfg.JWTSecret,
		JWTTTLMin:       cfg.JWTTTLMin,
		MaxGroupMembers: cfg.MaxGroupMembers,
		InboundRate:     cfg.InboundRate,
		InboundBurst:    cfg.InboundBurst,
	}
	if s.MaxGroupMembers < 2 {
		s.MaxGroupMembers = 2
	}
	if s.InboundBurst < 1 {
		s.InboundBurst = 1
	}
	return s
}

// Router mounts every endpoint on a fresh gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws/chat/:id", s.serveWS)

	pub := r.Group("/api")
	pub.POST("/login", s.login)

	api := r.Group("/api", auth.JWTMiddleware(s.JWTSecret))
	api.GET("/me", s.getMe)
	api.GET("/users/search", s.searchUsers)
	api.GET("/chat/:id/messages", s.history)
	api.POST("/conversations/private", s.createOrGetPrivate)
	api.POST("/conversations/group", s.createGroup)
	api.POST("/conversations/:id/participants", s.addParticipant)
	api.DELETE("/conversations/:id/participants/:userId", s.removeParticipant)
	api.GET("/conversations/:id/members", s.members)
	api.GET("/conversations", s.listMine)
	return r
}
