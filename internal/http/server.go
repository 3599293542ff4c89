package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/payments", handler.CreatePayment)
		r.Get("/payments/{paymentId}", handler.GetPayment)
		r.Get("/payments/{paymentId}/notifications", handler.ListNotifications)

		r.Post("/payment/notify", handler.HandleNotify)
		r.Get("/payment/notify/dead-letters", handler.ListDeadLetters)
	})

	return &Server{Router: r}
}
