package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zhouzirui/crisis-desk/backend/internal/handler/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/handler/persona"
	"github.com/zhouzirui/crisis-desk/backend/internal/handler/speech"
	"github.com/zhouzirui/crisis-desk/backend/internal/handler/stream"
	personaModel "github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
	"github.com/zhouzirui/crisis-desk/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	personaHandler := persona.New(personas)
	chatHandler := chat.New(chatSvc)
	speechHandler := speech.New(chatSvc)
	wsHandler := speech.NewWebSocketHandler(chatSvc)
	streamHandler := stream.New(chatSvc)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})

		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api, speechHandler.RegisterSessionRoutes)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
