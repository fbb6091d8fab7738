package inventory

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/warehouse-backend/internal/httpx"
)

// Handler exposes inventory HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/", h.listProducts) // ?below_threshold=true&offset=&limit=
		r.Get("/by-code/{code}", h.getProductByCode)
		r.Get("/{id}", h.getProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)

		// Stock endpoints
		r.Post("/{id}/quantity", h.updateQuantity)
		r.Get("/{id}/movements", h.listMovements)
		r.Post("/{id}/positions", h.addPosition)
		r.Put("/{id}/positions/{position_id}", h.setPositionUnits)
		r.Delete("/{id}/positions/{position_id}", h.removePosition)
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := httpx.Page(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	below, err := httpx.OptionalBool(r, "below_threshold")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	products, err := h.service.ListProducts(r.Context(), ListFilter{BelowThreshold: below, Offset: offset, Limit: limit})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, p)
}

func (h *Handler) getProductByCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProductByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PositionID     string `json:"position_id"`
		QuantityChange int    `json:"quantity_change"`
	}
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	p, err := h.service.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), body.PositionID, body.QuantityChange)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, p)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := httpx.Page(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	ms, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, ms)
}

func (h *Handler) addPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	pos, err := h.service.AddPosition(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, pos)
}

func (h *Handler) setPositionUnits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Units int `json:"units"`
	}
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	pos, err := h.service.SetPositionUnits(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "position_id"), body.Units)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, pos)
}

func (h *Handler) removePosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.RemovePosition(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "position_id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, p)
}
