package capabilities

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Speed is the rough streaming rate of a model.
type Speed string

const (
	SpeedFast   Speed = "fast"
	SpeedMedium Speed = "medium"
	SpeedSlow   Speed = "slow"
)

// ModelCapabilities describes one selectable model
type ModelCapabilities struct {
	// Model identifier (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Provider is copied from the enclosing provider file
	Provider string `yaml:"-" json:"provider"`

	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`
	Speed       Speed  `yaml:"speed" json:"speed"`

	// GeneratesTitle means the first exchange of a chat also produces a
	// title event
	GeneratesTitle bool `yaml:"generates_title" json:"generates_title"`

	// MaxOutputWords caps a single streamed reply
	MaxOutputWords int `yaml:"max_output_words" json:"max_output_words"`
}

// ProviderCapabilities represents all models for a provider
type ProviderCapabilities struct {
	Provider string              `yaml:"provider" json:"provider"`
	Models   []ModelCapabilities `yaml:"-" json:"models"` // Ordered slice, populated by custom unmarshaler
}

// UnmarshalYAML keeps the model order of the YAML file
func (p *ProviderCapabilities) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("provider file must be a mapping, got kind %d", node.Kind)
	}

	var models *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "provider":
			p.Provider = node.Content[i+1].Value
		case "models":
			models = node.Content[i+1]
		}
	}
	if models == nil {
		return nil
	}

	// models alternates key, value, key, value...
	for j := 0; j+1 < len(models.Content); j += 2 {
		var model ModelCapabilities
		if err := models.Content[j+1].Decode(&model); err != nil {
			return fmt.Errorf("model %s: %w", models.Content[j].Value, err)
		}
		model.ID = models.Content[j].Value
		model.Provider = p.Provider
		p.Models = append(p.Models, model)
	}
	return nil
}

// Palette is the set of display colors handed out to new branch links.
type Palette struct {
	Colors []string `yaml:"colors" json:"colors"`
}
