package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/boutique-commerce/internal/order/application"
	"github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

type paymentReq struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
}

// Routes is mounted at /orders. Order ids are unguessable uuids and the
// transition routes are called by back-office tooling, so no caller
// identity is required here.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.getOrder)
	r.Patch("/{id}/status", h.transitionStatus)
	r.Patch("/{id}/payment", h.transitionPayment)
	return r
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("order_id", id))

	o, err := h.service.Get(ctx, id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TransitionOrderStatus")
	defer span.End()

	var req statusReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	next, err := domain.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("order_id", id), attribute.String("status", string(next)))
	o, err := h.service.TransitionStatus(ctx, id, next)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) transitionPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TransitionOrderPayment")
	defer span.End()

	var req paymentReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	next, err := domain.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("order_id", id), attribute.String("payment_status", string(next)))
	o, err := h.service.TransitionPayment(ctx, id, next)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}
