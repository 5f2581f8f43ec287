package handler

import (
	"log/slog"
	"net/http"

	"branchchat/internal/capabilities"
	"branchchat/internal/httputil"
)

// Catalog lists the selectable models and the branch color palette.
type Catalog interface {
	GetAllProviders() []string
	ListProviderModels(provider string) ([]capabilities.ModelCapabilities, error)
	Colors() []string
}

// ModelsHandler handles HTTP requests for model capabilities
type ModelsHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(catalog Catalog, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ProviderResponse represents a provider with its models
type ProviderResponse struct {
	ID     string                           `json:"id"`
	Models []capabilities.ModelCapabilities `json:"models"`
}

// CapabilitiesResponse is the body of GET /models
type CapabilitiesResponse struct {
	Providers []ProviderResponse `json:"providers"`
	Palette   []string           `json:"palette"`
}

// GetCapabilities returns every configured provider with its models
// GET /models
func (h *ModelsHandler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	resp := CapabilitiesResponse{
		Providers: []ProviderResponse{},
		Palette:   h.catalog.Colors(),
	}
	for _, provider := range h.catalog.GetAllProviders() {
		models, err := h.catalog.ListProviderModels(provider)
		if err != nil {
			h.logger.Warn("skipping provider", "provider", provider, "error", err)
			continue
		}
		resp.Providers = append(resp.Providers, ProviderResponse{ID: provider, Models: models})
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}
