package handler

import (
	"context"
	"log/slog"
	"net/http"

	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
	"branchchat/internal/httputil"
)

// rootID addresses the workspace root in /items/{id}/renormalize.
const rootID = "root"

// ItemStore is the tree storage behind the /items endpoints.
type ItemStore interface {
	ListItems(ctx context.Context, parentID string) ([]models.Item, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	CreateItem(ctx context.Context, item models.Item) (*models.Item, error)
	MoveItem(ctx context.Context, id string, req repositories.MoveItemRequest) (*models.Item, error)
	RenameItem(ctx context.Context, id, name string) (*models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	Renormalize(ctx context.Context, parentID string) ([]models.ItemPosition, error)
}

// ItemHandler handles the generic tree endpoints
type ItemHandler struct {
	store  ItemStore
	logger *slog.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(store ItemStore, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		store:  store,
		logger: logger,
	}
}

// MoveItemRequest is the body of a move. An absent parent_id keeps the
// current parent, null moves to the root.
type MoveItemRequest struct {
	ParentID httputil.OptionalString `json:"parent_id"`
	Position *float64                `json:"position"`
}

// RenameItemRequest is the body of a rename.
type RenameItemRequest struct {
	Name string `json:"name"`
}

// ListRoot lists the items at the workspace root
// GET /items
func (h *ItemHandler) ListRoot(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

// ListChildren lists the children of a folder
// GET /items/{id}/children
func (h *ItemHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.PathValue("id"))
}

func (h *ItemHandler) list(w http.ResponseWriter, r *http.Request, parentID string) {
	items, err := h.store.ListItems(r.Context(), parentID)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, items)
}

// CreateItem creates a folder, note or chat with a client-chosen id
// POST /items
// Returns 201 if created, 409 with the existing item if the id is taken
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item models.Item
	if err := httputil.ParseJSON(w, r, &item); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	created, err := h.store.CreateItem(r.Context(), item)
	if err != nil {
		HandleCreateConflict(w, err, func(id string) (*models.Item, error) {
			return h.store.GetItem(r.Context(), id)
		})
		return
	}

	h.logger.Info("item created", "id", created.ID, "type", created.Type)
	httputil.RespondJSON(w, http.StatusCreated, created)
}

// MoveItem reparents and/or repositions an item
// PATCH /items/{id}/move
func (h *ItemHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req MoveItemRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}
	if req.Position == nil {
		httputil.RespondError(w, http.StatusBadRequest, "position is required")
		return
	}

	parentID, err := req.ParentID.Resolve(func() (*string, error) {
		current, err := h.store.GetItem(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return current.ParentID, nil
	})
	if err != nil {
		handleError(w, err)
		return
	}
	move := repositories.MoveItemRequest{ParentID: parentID, Position: *req.Position}

	moved, err := h.store.MoveItem(r.Context(), id, move)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, moved)
}

// RenameItem changes an item's name
// PATCH /items/{id}/rename
func (h *ItemHandler) RenameItem(w http.ResponseWriter, r *http.Request) {
	var req RenameItemRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	renamed, err := h.store.RenameItem(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, renamed)
}

// DeleteItem removes an item and its subtree
// DELETE /items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteItem(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("item deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Renormalize respaces the children of a folder, or of the root
// POST /items/{id}/renormalize
func (h *ItemHandler) Renormalize(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("id")
	if parentID == rootID {
		parentID = ""
	}

	positions, err := h.store.Renormalize(r.Context(), parentID)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Debug("positions renormalized", "parent_id", parentID, "count", len(positions))
	httputil.RespondJSON(w, http.StatusOK, positions)
}
