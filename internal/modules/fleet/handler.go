package fleet

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/warehouse-backend/internal/httpx"
)

// Handler exposes fleet HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/forklifts", func(r chi.Router) {
		r.Post("/", h.createForklift)
		r.Get("/", h.listForklifts) // ?state=sane|trouble
		r.Get("/summary", h.summary)
		r.Get("/{id}", h.getForklift)
		r.Patch("/{id}", h.updateForklift)
		r.Delete("/{id}", h.deleteForklift)

		r.Post("/{id}/maintenance", h.recordMaintenance)
		r.Post("/{id}/assign-task", h.assignTask)
		r.Post("/{id}/complete-task", h.completeTask)
	})
}

func (h *Handler) createForklift(w http.ResponseWriter, r *http.Request) {
	var req CreateForkliftRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	f, err := h.service.CreateForklift(r.Context(), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, f)
}

func (h *Handler) listForklifts(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := httpx.Page(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	filter := ListFilter{Offset: offset, Limit: limit}
	if v := r.URL.Query().Get("state"); v != "" {
		state := State(v)
		filter.State = &state
	}
	fs, err := h.service.ListForklifts(r.Context(), filter)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, fs)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Summary(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, s)
}

func (h *Handler) getForklift(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.GetForklift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, f)
}

func (h *Handler) updateForklift(w http.ResponseWriter, r *http.Request) {
	var req UpdateForkliftRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	f, err := h.service.UpdateForklift(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, f)
}

func (h *Handler) deleteForklift(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteForklift(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordMaintenance(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.RecordMaintenance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, f)
}

func (h *Handler) assignTask(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.AssignTask(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("task_id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, f)
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.CompleteTask(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("task_id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, f)
}
