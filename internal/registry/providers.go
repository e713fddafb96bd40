// Package registry holds the static provider registry: per-provider
// confidence priors, the fixed priority order used to break merge ties, and
// the mapping from each provider's type vocabulary onto the canonical
// holiday-type enum. The registry is loaded once per run and immutable after.
package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

// Provider IDs for the three built-in adapters.
const (
	ProviderNager        = "nager"
	ProviderNinjas       = "ninjas"
	ProviderOpenHolidays = "openholidays"
)

// ProviderConfig holds per-provider reconciliation settings.
type ProviderConfig struct {
	// Prior is the starting confidence for records from this provider.
	Prior float64 `yaml:"prior"`

	// TypeVocabulary maps the provider's native type strings (lowercased)
	// onto the canonical enum. Unmapped values fall back to unknown.
	TypeVocabulary map[string]model.HolidayType `yaml:"type_vocabulary"`
}

// Registry is the full provider registry.
type Registry struct {
	// Priority lists provider IDs from most to least trusted. It breaks
	// majority-vote ties during merging and must therefore stay fixed in
	// configuration, never inferred at runtime.
	Priority []string `yaml:"priority"`

	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Default returns the compiled-in registry covering the three built-in
// providers.
func Default() *Registry {
	return &Registry{
		Priority: []string{ProviderNager, ProviderOpenHolidays, ProviderNinjas},
		Providers: map[string]ProviderConfig{
			ProviderNager: {
				Prior: 0.9,
				TypeVocabulary: map[string]model.HolidayType{
					"public":      model.TypePublic,
					"bank":        model.TypeBank,
					"optional":    model.TypeObservance,
					"observance":  model.TypeObservance,
					"school":      model.TypeObservance,
					"authorities": model.TypeBank,
				},
			},
			ProviderOpenHolidays: {
				Prior: 0.85,
				TypeVocabulary: map[string]model.HolidayType{
					"public":   model.TypePublic,
					"bank":     model.TypeBank,
					"regional": model.TypePublic,
					"optional": model.TypeObservance,
					"school":   model.TypeObservance,
				},
			},
			ProviderNinjas: {
				Prior: 0.7,
				TypeVocabulary: map[string]model.HolidayType{
					"public_holiday":   model.TypePublic,
					"national_holiday": model.TypePublic,
					"bank_holiday":     model.TypeBank,
					"observance":       model.TypeObservance,
				},
			},
		},
	}
}

// Load reads a registry from a YAML file and fills gaps from Default.
// Unknown providers in the file are kept as-is so new adapters can be
// configured without a rebuild.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var wrapper struct {
		Sources Registry `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "registry: parse")
	}

	reg := &wrapper.Sources
	def := Default()
	if len(reg.Priority) == 0 {
		reg.Priority = def.Priority
	}
	if reg.Providers == nil {
		reg.Providers = map[string]ProviderConfig{}
	}
	for id, pc := range def.Providers {
		got, ok := reg.Providers[id]
		if !ok {
			reg.Providers[id] = pc
			continue
		}
		if got.Prior == 0 {
			got.Prior = pc.Prior
		}
		if got.TypeVocabulary == nil {
			got.TypeVocabulary = pc.TypeVocabulary
		}
		reg.Providers[id] = got
	}
	return reg, nil
}

// Prior returns the confidence prior for a provider, defaulting to 0.5 for
// providers missing from the registry.
func (r *Registry) Prior(providerID string) float64 {
	if pc, ok := r.Providers[providerID]; ok && pc.Prior > 0 {
		return pc.Prior
	}
	return 0.5
}

// MapType resolves a provider-native type string to the canonical enum.
func (r *Registry) MapType(providerID, rawType string) model.HolidayType {
	raw := strings.ToLower(strings.TrimSpace(rawType))
	if raw == "" {
		return model.TypeUnknown
	}
	if pc, ok := r.Providers[providerID]; ok {
		if t, ok := pc.TypeVocabulary[raw]; ok {
			return t
		}
	}
	return model.ParseHolidayType(raw)
}

// Rank returns the priority rank of a provider (0 = most trusted). Providers
// absent from the priority list rank below all listed ones.
func (r *Registry) Rank(providerID string) int {
	for i, id := range r.Priority {
		if id == providerID {
			return i
		}
	}
	return len(r.Priority)
}
