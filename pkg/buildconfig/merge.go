package buildconfig

import (
	"fmt"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// MergeKeyValuePairs parses a list of "KEY=VALUE" CLI flag values and merges
// them into base, CLI entries winning on key collision and later entries
// winning over earlier ones. base is not mutated; a new map is returned.
func MergeKeyValuePairs(pairs []string, base map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		merged[k] = v
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("must be in KEY=VALUE format: %s", pair)
		}
		if key == "" {
			return nil, fmt.Errorf("key cannot be empty: %s", pair)
		}
		merged[key] = value
	}

	return merged, nil
}

// ApplyLabelOverrides returns a copy of cfg with its Labels merged against
// CLI-supplied "KEY=VALUE" label flags, CLI entries winning on collision.
func ApplyLabelOverrides(cfg v1.Config, labels []string) (v1.Config, error) {
	merged, err := MergeKeyValuePairs(labels, cfg.Labels)
	if err != nil {
		return v1.Config{}, fmt.Errorf("parsing labels: %w", err)
	}
	if len(merged) > 0 {
		cfg.Labels = merged
	}
	return cfg, nil
}
