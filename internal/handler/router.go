package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/Kelvinsaleh/Hope-backend-sub000/internal/handler/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/handler/memoryh"
	middlewarePkg "github.com/Kelvinsaleh/Hope-backend-sub000/internal/middleware"
	chatService "github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.New(chatSvc).RegisterRoutes(api)
		memoryh.New(chatSvc).RegisterRoutes(api)
	})

	return r
}
