package capabilities

import (
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewRegistryLoadsEmbeddedFiles(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if got := r.GetAllProviders(); !slices.Equal(got, []string{"lorem"}) {
		t.Errorf("providers = %v", got)
	}

	models, err := r.ListProviderModels("lorem")
	if err != nil {
		t.Fatalf("ListProviderModels: %v", err)
	}
	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
		if m.Provider != "lorem" {
			t.Errorf("model %s provider = %q", m.ID, m.Provider)
		}
	}
	if want := []string{"lorem-fast", "lorem-medium", "lorem-slow"}; !slices.Equal(ids, want) {
		t.Errorf("model order = %v, want %v", ids, want)
	}
}

func TestModelLookup(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{name: "bare id", id: "lorem-slow", want: "Lorem Slow"},
		{name: "provider prefix", id: "lorem/lorem-fast", want: "Lorem Fast"},
		{name: "unknown model", id: "gpt-9", wantErr: true},
		{name: "unknown provider", id: "acme/lorem-fast", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Model(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", m)
				}
				return
			}
			if err != nil {
				t.Fatalf("Model(%q): %v", tt.id, err)
			}
			if m.DisplayName != tt.want {
				t.Errorf("display name = %q, want %q", m.DisplayName, tt.want)
			}
		})
	}
}

func TestRandomColorIsFromPalette(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	colors := r.Colors()
	if len(colors) == 0 {
		t.Fatal("empty palette")
	}
	for i := 0; i < 50; i++ {
		if c := r.RandomColor(); !slices.Contains(colors, c) {
			t.Fatalf("color %q not in palette %v", c, colors)
		}
	}
}

func TestProviderUnmarshalKeepsOrder(t *testing.T) {
	src := `
provider: demo
models:
  zeta:
    display_name: Zeta
  alpha:
    display_name: Alpha
    max_output_words: 12
`
	var p ProviderCapabilities
	if err := yaml.Unmarshal([]byte(src), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(p.Models) != 2 || p.Models[0].ID != "zeta" || p.Models[1].ID != "alpha" {
		t.Fatalf("models = %+v", p.Models)
	}
	if p.Models[1].MaxOutputWords != 12 || p.Models[1].Provider != "demo" {
		t.Errorf("alpha = %+v", p.Models[1])
	}
}
