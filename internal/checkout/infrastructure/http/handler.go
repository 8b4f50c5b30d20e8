package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/boutique-commerce/internal/checkout/application"
	"github.com/dmehra2102/boutique-commerce/pkg/httpx"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("checkout-http"),
	}
}

type checkoutReq struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
}

// Routes is mounted at /checkout.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequireUser)
	r.Post("/", h.checkout)
	return r
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PostCheckout")
	defer span.End()

	var req checkoutReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	res, err := h.service.Checkout(ctx, application.Request{
		UserID:          httpx.UserFrom(ctx),
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/orders/"+res.Order.ID)
	httpx.WriteJSON(w, status, res.Order)
}
