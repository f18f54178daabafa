package stages

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/dalemusser/docflow/internal/domain/models"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of a budget override file:
//
//	budgets:
//	  registration: 90
//	  resolution: 240
//	terminal: [completed, rejected, on_hold, cancelled, archived]
//	require_reviewers: [final_review]
type fileConfig struct {
	Budgets          map[string]int `yaml:"budgets"`
	Terminal         []string       `yaml:"terminal"`
	RequireReviewers []string       `yaml:"require_reviewers"`
}

// Parse decodes a YAML budget file payload into a Registry.
func Parse(data []byte) (*Registry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("stages: decode budgets: %w", err)
	}

	cfg := Config{Budgets: make(map[models.Stage]int, len(fc.Budgets))}
	for k, v := range fc.Budgets {
		cfg.Budgets[normalize(k)] = v
	}
	for _, s := range fc.Terminal {
		cfg.Terminal = append(cfg.Terminal, normalize(s))
	}
	for _, s := range fc.RequireReviewers {
		cfg.RequireReviewers = append(cfg.RequireReviewers, normalize(s))
	}
	return New(cfg)
}

// LoadFile reads a budget file. An empty path yields the default registry.
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stages: read %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("stages: %s: %w", path, err)
	}
	return reg, nil
}

// normalize accepts "pending-registration" as well as "pending_registration".
func normalize(s string) models.Stage {
	s = strings.ToLower(strings.TrimSpace(s))
	return models.Stage(strings.ReplaceAll(s, "-", "_"))
}
