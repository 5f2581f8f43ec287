package rest

import (
	"context"
	"net/http"

	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

// rootSegment addresses the workspace root in /items/{id}/... paths.
const rootSegment = "root"

// ItemRepository is the /items endpoint group.
type ItemRepository struct {
	client *Client
}

var _ repositories.ItemRepository = (*ItemRepository)(nil)

// NewItemRepository creates the /items repository on top of c.
func NewItemRepository(c *Client) *ItemRepository {
	return &ItemRepository{client: c}
}

type moveItemBody struct {
	ParentID *string `json:"parent_id"`
	Position float64 `json:"position"`
}

type renameItemBody struct {
	Name string `json:"name"`
}

func (r *ItemRepository) ListRoot(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	if err := r.client.do(ctx, http.MethodGet, "/items", nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepository) ListChildren(ctx context.Context, parentID string) ([]models.Item, error) {
	var items []models.Item
	if err := r.client.do(ctx, http.MethodGet, "/items/"+pathID(parentID)+"/children", nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepository) Create(ctx context.Context, item models.Item) (*models.Item, error) {
	var created models.Item
	if err := r.client.do(ctx, http.MethodPost, "/items", nil, item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *ItemRepository) Move(ctx context.Context, id string, req repositories.MoveItemRequest) (*models.Item, error) {
	var moved models.Item
	body := moveItemBody{ParentID: req.ParentID, Position: req.Position}
	if err := r.client.do(ctx, http.MethodPatch, "/items/"+pathID(id)+"/move", nil, body, &moved); err != nil {
		return nil, err
	}
	return &moved, nil
}

func (r *ItemRepository) Rename(ctx context.Context, id, name string) (*models.Item, error) {
	var renamed models.Item
	if err := r.client.do(ctx, http.MethodPatch, "/items/"+pathID(id)+"/rename", nil, renameItemBody{Name: name}, &renamed); err != nil {
		return nil, err
	}
	return &renamed, nil
}

func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	return r.client.do(ctx, http.MethodDelete, "/items/"+pathID(id), nil, nil, nil)
}

func (r *ItemRepository) Renormalize(ctx context.Context, parentID string) ([]models.ItemPosition, error) {
	segment := rootSegment
	if parentID != "" {
		segment = pathID(parentID)
	}
	var positions []models.ItemPosition
	if err := r.client.do(ctx, http.MethodPost, "/items/"+segment+"/renormalize", nil, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}
