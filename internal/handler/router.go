package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/mira-chat/internal/handler/chat"
	"github.com/zhouzirui/mira-chat/internal/handler/persona"
	"github.com/zhouzirui/mira-chat/internal/handler/stream"
	"github.com/zhouzirui/mira-chat/internal/handler/widget"
	middlewarePkg "github.com/zhouzirui/mira-chat/internal/middleware"
	personaModel "github.com/zhouzirui/mira-chat/internal/model/persona"
	chatService "github.com/zhouzirui/mira-chat/internal/service/chat"
)

const apiPrefix = "/api"

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, subscriber stream.Subscriber) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	personaHandler := persona.New(personas)
	chatHandler := chat.New(chatSvc)
	streamHandler := stream.New(chatSvc, subscriber)
	widgetHandler := widget.New(chatSvc.Persona(), apiPrefix)

	widgetHandler.RegisterRoutes(r)

	r.Route(apiPrefix, func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
