package http

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ajeenpos/internal/events"
	"ajeenpos/internal/models"
	"ajeenpos/internal/orders"
	"ajeenpos/internal/payments"
	"ajeenpos/internal/printer"
	"ajeenpos/internal/provider"
	"ajeenpos/internal/store"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	Orders        *orders.Service
	Gateway       *events.Gateway
	Refunds       *payments.RefundService
	Printer       *printer.Client
	WebhookSecret string
}

type orderResponse struct {
	Order *models.Order           `json:"order"`
	Items []store.OrderItemDetail `json:"items"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) startOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.StartRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, err := h.Orders.StartOrder(r.Context(), req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, err := h.Orders.CheckoutWebsite(r.Context(), req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	order, items, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: order, Items: items})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, err := h.Orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req orders.CompletionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, err := h.Orders.Complete(r.Context(), id, req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// reprintTickets re-sends the station and QC tickets for an order. Manual
// path for jammed printers; it does not touch the one-shot latch.
func (h *Handler) reprintTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	order, items, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.Printer.PrintKitchenAndQC(r.Context(), order, items)
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID int64 `json:"order_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	intent, err := h.Gateway.CreateIntent(r.Context(), req.OrderID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"intent_id":     intent.ID,
		"client_secret": intent.ClientSecret,
		"status":        intent.Status,
	})
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	var req events.ProcessRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	intent, err := h.Gateway.ProcessPayment(r.Context(), req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"intent_id": intent.ID,
		"status":    intent.Status,
	})
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntentID string `json:"intent_id"`
	}
	if err := decode(r, &req); err != nil || req.IntentID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	intent, err := h.Gateway.ConfirmPayment(r.Context(), req.IntentID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"intent_id": intent.ID,
		"status":    intent.Status,
	})
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	var req payments.RefundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.PaymentID = paymentID
	result, err := h.Refunds.Refund(r.Context(), req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// webhook verifies, parses, and applies a provider event. Everything past
// the signature check is acknowledged with 200: the provider's retries
// cannot fix a payload we already logged as unusable.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	sig := r.Header.Get("Webhook-Signature")
	if err := events.VerifySignature(body, sig, h.WebhookSecret, events.DefaultTolerance); err != nil {
		log.Printf("webhook rejected: %v", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ev, err := events.ParseEvent(body)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			log.Printf("webhook: %v", err)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if err := h.Gateway.HandleEvent(r.Context(), ev); err != nil {
		log.Printf("webhook %s (%s): %v", ev.ID, ev.Kind, err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "error_logged"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	var provErr *provider.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrNotCompletable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orders.ErrNoItems),
		errors.Is(err, orders.ErrNoTransactions),
		errors.Is(err, payments.ErrRefundNotAllowed),
		errors.Is(err, payments.ErrRefundExceedsBalance):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &provErr):
		writeError(w, http.StatusPaymentRequired, provErr.Message)
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
