// Package capabilities is the embedded catalog of selectable models and of
// the colors used for branch links.
package capabilities

import (
	"embed"
	"fmt"
	"math/rand/v2"
	"path"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

const paletteFile = "config/palette.yaml"

// Registry manages model capabilities across all providers
type Registry struct {
	providers map[string]*ProviderCapabilities
	order     []string
	palette   Palette
	mu        sync.RWMutex
}

// NewRegistry creates a new capability registry and loads embedded YAML files
func NewRegistry() (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*ProviderCapabilities),
	}

	files, err := configFiles.ReadDir("config")
	if err != nil {
		return nil, fmt.Errorf("failed to list capability files: %w", err)
	}
	for _, f := range files {
		name := path.Join("config", f.Name())
		if name == paletteFile || path.Ext(name) != ".yaml" {
			continue
		}
		if err := r.loadProviderFile(name); err != nil {
			return nil, err
		}
	}

	if err := r.loadPalette(); err != nil {
		return nil, err
	}
	return r, nil
}

// loadProviderFile loads a provider's capability YAML file
func (r *Registry) loadProviderFile(filename string) error {
	data, err := configFiles.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var providerCaps ProviderCapabilities
	if err := yaml.Unmarshal(data, &providerCaps); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}
	if providerCaps.Provider == "" {
		return fmt.Errorf("%s: provider is required", filename)
	}

	r.mu.Lock()
	r.providers[providerCaps.Provider] = &providerCaps
	r.order = append(r.order, providerCaps.Provider)
	r.mu.Unlock()

	return nil
}

func (r *Registry) loadPalette() error {
	data, err := configFiles.ReadFile(paletteFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", paletteFile, err)
	}
	var p Palette
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", paletteFile, err)
	}
	if len(p.Colors) == 0 {
		return fmt.Errorf("%s: at least one color is required", paletteFile)
	}
	r.palette = p
	return nil
}

// GetModelCapabilities returns capabilities for a specific model
func (r *Registry) GetModelCapabilities(provider, model string) (*ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	for i := range providerCaps.Models {
		if providerCaps.Models[i].ID == model {
			m := providerCaps.Models[i]
			return &m, nil
		}
	}

	return nil, fmt.Errorf("unknown model %s for provider %s", model, provider)
}

// Model looks a model up by id across all providers. A "provider/model"
// id is resolved against that provider only.
func (r *Registry) Model(id string) (*ModelCapabilities, error) {
	if provider, model, ok := strings.Cut(id, "/"); ok {
		return r.GetModelCapabilities(provider, model)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		for _, m := range r.providers[name].Models {
			if m.ID == id {
				return &m, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown model: %s", id)
}

// ListProviderModels returns all models for a provider (ordered as defined in YAML)
func (r *Registry) ListProviderModels(provider string) ([]ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return slices.Clone(providerCaps.Models), nil
}

// Models returns every model, grouped by provider in load order.
func (r *Registry) Models() []ModelCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ModelCapabilities
	for _, name := range r.order {
		out = append(out, r.providers[name].Models...)
	}
	return out
}

// GetAllProviders returns a list of all registered providers
func (r *Registry) GetAllProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Colors returns the branch color palette.
func (r *Registry) Colors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.palette.Colors)
}

// RandomColor picks a palette color for a new branch link.
func (r *Registry) RandomColor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.palette.Colors[rand.IntN(len(r.palette.Colors))]
}
