package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ajeenpos/internal/hub"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handler, bus *hub.Hub) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/start", h.startOrder)
		r.Post("/checkout", h.checkout)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Patch("/status", h.updateOrderStatus)
			r.Post("/complete", h.completeOrder)
			r.Post("/reprint", h.reprintTickets)
		})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/intent", h.createIntent)
		r.Post("/process", h.processPayment)
		r.Post("/confirm", h.confirmPayment)
		r.Post("/webhook", h.webhook)
		r.Post("/{paymentID}/refund", h.refund)
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/kitchen", bus.ServeGroup(func(*http.Request) string {
			return hub.KitchenGroup
		}))
		r.Get("/orders/{orderID}", bus.ServeGroup(func(req *http.Request) string {
			id, err := strconv.ParseInt(chi.URLParam(req, "orderID"), 10, 64)
			if err != nil {
				return ""
			}
			return hub.OrderGroup(id)
		}))
		r.Get("/pos/{location}", bus.ServeGroup(func(req *http.Request) string {
			return hub.POSGroup(chi.URLParam(req, "location"))
		}))
	})

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
