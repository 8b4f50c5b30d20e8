package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/boutique-commerce/internal/cart/application"
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
		tracer:  otel.Tracer("cart-http"),
	}
}

type addItemReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=999"`
}

type updateQuantityReq struct {
	Quantity *int `json:"quantity" validate:"required,max=999"`
}

// Routes is mounted at /cart.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequireUser)
	r.Get("/", h.getCart)
	r.Delete("/", h.clear)
	r.Post("/items", h.addItem)
	r.Patch("/items/{product_id}", h.updateQuantity)
	r.Delete("/items/{product_id}", h.removeItem)
	return r
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCart")
	defer span.End()

	c, err := h.service.GetCart(ctx, httpx.UserFrom(ctx))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddCartItem")
	defer span.End()

	var req addItemReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.String("product_id", req.ProductID), attribute.Int("quantity", req.Quantity))

	c, err := h.service.AddProduct(ctx, httpx.UserFrom(ctx), req.ProductID, req.Quantity)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateCartItem")
	defer span.End()

	var req updateQuantityReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	c, err := h.service.UpdateQuantity(ctx, httpx.UserFrom(ctx), chi.URLParam(r, "product_id"), *req.Quantity)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCartItem")
	defer span.End()

	c, err := h.service.RemoveItem(ctx, httpx.UserFrom(ctx), chi.URLParam(r, "product_id"))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ClearCart")
	defer span.End()

	if err := h.service.Clear(ctx, httpx.UserFrom(ctx)); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
