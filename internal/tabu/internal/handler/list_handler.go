// Package handler provides the JSON HTTP API for tabu lists.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/SebastienMelki/tabu/internal/tabu/internal/domain"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/service"
)

// ListHandler handles HTTP requests for tabu list management and queries.
type ListHandler struct {
	service         *service.RegistryService
	defaultCapacity int
	logger          *slog.Logger
}

// NewListHandler creates a new ListHandler. defaultCapacity is used when a
// create request does not name a capacity.
func NewListHandler(svc *service.RegistryService, defaultCapacity int, logger *slog.Logger) *ListHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListHandler{
		service:         svc,
		defaultCapacity: defaultCapacity,
		logger:          logger.With("component", "list-handler"),
	}
}

// RegisterRoutes mounts the tabu list endpoints on the given ServeMux.
//
// Endpoints:
//   - POST   /v1/lists              - Create a list
//   - GET    /v1/lists              - List all lists
//   - GET    /v1/lists/{id}         - Show a list and its moves
//   - DELETE /v1/lists/{id}         - Delete a list
//   - POST   /v1/lists/{id}/reset   - Empty a list, optionally resizing it
//   - POST   /v1/lists/{id}/find    - Check whether a move is tabu
//   - POST   /v1/lists/{id}/insert  - Insert one move or a batch
//   - POST   /v1/lists/{id}/filter  - Keep only the non-tabu candidates
func (h *ListHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/lists", h.handleCreate)
	mux.HandleFunc("GET /v1/lists", h.handleList)
	mux.HandleFunc("GET /v1/lists/{id}", h.handleGet)
	mux.HandleFunc("DELETE /v1/lists/{id}", h.handleDelete)
	mux.HandleFunc("POST /v1/lists/{id}/reset", h.handleReset)
	mux.HandleFunc("POST /v1/lists/{id}/find", h.handleFind)
	mux.HandleFunc("POST /v1/lists/{id}/insert", h.handleInsert)
	mux.HandleFunc("POST /v1/lists/{id}/filter", h.handleFilter)
}

// createListRequest is the JSON request body for creating a list.
type createListRequest struct {
	Name     string `json:"name"`
	Capacity *int   `json:"capacity"`
}

// resetListRequest is the optional JSON request body for a reset.
type resetListRequest struct {
	Capacity *int `json:"capacity"`
}

// movesRequest carries either a single move or a batch of moves.
type movesRequest struct {
	Move  *domain.Move  `json:"move"`
	Moves []domain.Move `json:"moves"`
}

// listDetail is a list with its resident moves, oldest first.
type listDetail struct {
	domain.ListInfo
	Items []domain.Move `json:"items"`
}

// handleCreate handles POST /v1/lists.
func (h *ListHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	capacity := h.defaultCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}

	info, err := h.service.CreateList(r.Context(), req.Name, capacity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

// handleList handles GET /v1/lists.
func (h *ListHandler) handleList(w http.ResponseWriter, r *http.Request) {
	lists := h.service.Lists(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lists": lists,
		"count": len(lists),
	})
}

// handleGet handles GET /v1/lists/{id}.
func (h *ListHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	info, items, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listDetail{ListInfo: info, Items: items})
}

// handleDelete handles DELETE /v1/lists/{id}.
func (h *ListHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.service.DeleteList(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     id,
	})
}

// handleReset handles POST /v1/lists/{id}/reset. The body is optional.
func (h *ListHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetListRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	info, err := h.service.ResetList(r.Context(), r.PathValue("id"), req.Capacity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleFind handles POST /v1/lists/{id}/find.
func (h *ListHandler) handleFind(w http.ResponseWriter, r *http.Request) {
	var req movesRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if req.Move == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "move is required",
		})
		return
	}

	found, err := h.service.Find(r.Context(), r.PathValue("id"), *req.Move)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"move": *req.Move,
		"tabu": found,
	})
}

// handleInsert handles POST /v1/lists/{id}/insert. A single "move" returns
// one result; "moves" returns a result per move in request order.
func (h *ListHandler) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req movesRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	id := r.PathValue("id")

	switch {
	case req.Move != nil && req.Moves == nil:
		result, err := h.service.Insert(r.Context(), id, *req.Move)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case req.Move == nil && len(req.Moves) > 0:
		results, err := h.service.InsertBatch(r.Context(), id, req.Moves)
		if err != nil {
			h.writeError(w, err)
			return
		}

		inserted, evicted := 0, 0
		for _, res := range results {
			if res.Inserted {
				inserted++
			}
			if res.Evicted != nil {
				evicted++
			}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"results":        results,
			"inserted_count": inserted,
			"evicted_count":  evicted,
		})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "exactly one of move or moves is required",
		})
	}
}

// handleFilter handles POST /v1/lists/{id}/filter.
func (h *ListHandler) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req movesRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	allowed, err := h.service.FilterAllowed(r.Context(), r.PathValue("id"), req.Moves)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"allowed": allowed,
		"count":   len(allowed),
	})
}

// decode reads a JSON body into v. When optional is set an empty body is
// accepted. It writes the error response itself and reports success.
func (h *ListHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": "request body too large",
		})
		return false
	}

	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": "invalid request body",
	})
	return false
}

// writeError maps service errors to HTTP status codes.
func (h *ListHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrListNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCapacity), errors.Is(err, service.ErrCapacityTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrTooManyLists):
		status = http.StatusConflict
	default:
		h.logger.Error("tabu request failed", "error", err)
		writeJSON(w, status, map[string]string{
			"error": "internal error",
		})
		return
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

// writeJSON writes a JSON response with the given status code and body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
