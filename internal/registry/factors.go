// Package registry holds the comparison-factor templates used when the
// caller does not supply factors. Templates are keyed by product category;
// "generic" is the fallback for anything unrecognized.
package registry

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// GenericCategory is the fallback template key.
const GenericCategory = "generic"

// FactorRegistry maps product categories to ordered factor lists.
type FactorRegistry struct {
	templates map[string][]string
}

// Defaults returns the built-in factor templates.
func Defaults() *FactorRegistry {
	return &FactorRegistry{
		templates: map[string][]string{
			GenericCategory: {
				"pricing",
				"key features",
				"target audience",
				"support options",
			},
			"crm": {
				"pricing",
				"integration capabilities",
				"customer support",
				"automation features",
			},
			"cicd": {
				"pricing",
				"supported platforms",
				"pipeline configuration",
				"self-hosted option",
			},
			"project management": {
				"pricing",
				"collaboration features",
				"integrations",
				"reporting",
			},
		},
	}
}

// LoadFromFile reads category → factors templates from a YAML file and
// merges them over the built-in defaults (file entries win).
func LoadFromFile(path string) (*FactorRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read factor templates")
	}

	var loaded map[string][]string
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal factor templates")
	}

	r := Defaults()
	for category, factors := range loaded {
		r.templates[normalize(category)] = factors
	}
	return r, nil
}

// Lookup returns the template for a category, falling back to generic.
// The second return reports whether the category matched directly.
func (r *FactorRegistry) Lookup(category string) ([]string, bool) {
	if factors, ok := r.templates[normalize(category)]; ok {
		return append([]string(nil), factors...), true
	}
	return append([]string(nil), r.templates[GenericCategory]...), false
}

// Categories returns the known template keys, sorted.
func (r *FactorRegistry) Categories() []string {
	out := make([]string, 0, len(r.templates))
	for k := range r.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
