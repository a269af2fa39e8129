package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/DoyleJ11/quiz-battle-backend/internal/battle"
	"github.com/DoyleJ11/quiz-battle-backend/internal/ws"
)

func SetupRoutes(svc *battle.Service, store Pinger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", CreateRoom(svc))
			r.Post("/join", JoinRoom(svc))
			r.Get("/{code}", GetRoom(svc))
		})
		r.Post("/questions/start", StartQuestion(svc))
		r.Get("/questions/start", StartQuestion(svc))
		r.Post("/answers", SubmitAnswer(svc))
		r.Post("/actions", TeamAction(svc))
	})

	// Public routes
	r.Get("/healthz", Healthz(store))
	r.Get("/ws", ws.Handler(svc, allowedOrigins))
	return r
}
