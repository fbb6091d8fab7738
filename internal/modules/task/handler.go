package task

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/httpx"
)

// Handler exposes task HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", h.createTask)
		r.Get("/", h.listTasks) // ?state=ongoing|finished&offset=&limit=
		r.Get("/{id}", h.getTask)
		r.Patch("/{id}", h.updateTask)
		r.Delete("/{id}", h.deleteTask)

		r.Post("/{id}/items", h.addItem)
		r.Patch("/{id}/items/{item_id}", h.updateItem)
		r.Delete("/{id}/items/{item_id}", h.deleteItem)

		// Completion endpoints
		r.Post("/{id}/items/{item_id}/complete", h.completeItem)
		r.Post("/{id}/complete", h.completeTask)

		r.Post("/{id}/forklift", h.assignForklift)
	})
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	t, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, t)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := httpx.Page(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	f := ListFilter{Offset: offset, Limit: limit}
	if v := r.URL.Query().Get("state"); v != "" {
		st := OverallState(v)
		if st != TaskOngoing && st != TaskFinished {
			httpx.Error(w, fmt.Errorf("state must be ongoing or finished: %w", apperr.ErrInvalidInput))
			return
		}
		f.State = &st
	}
	tasks, err := h.service.ListTasks(r.Context(), f)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, tasks)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, t)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	t, err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, t)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	t, err := h.service.AddItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, t)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	t, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item_id"), req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, t)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.DeleteItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item_id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, t)
}

func (h *Handler) completeItem(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.CompleteItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item_id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, t)
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CompleteTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	status := http.StatusOK
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.Respond(w, status, res)
}

type assignForkliftRequest struct {
	ForkliftID string `json:"forklift_id"`
}

func (h *Handler) assignForklift(w http.ResponseWriter, r *http.Request) {
	var req assignForkliftRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	t, err := h.service.AssignForklift(r.Context(), chi.URLParam(r, "id"), req.ForkliftID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, t)
}
