// Package buildconfig turns the pieces the CLI gathers about the target
// image — a seed config file or string, repeated --label/--annotation
// flags, a source date epoch, and an architecture override — into the
// pieces ociimage.BuildImage needs.
package buildconfig

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParsedConfig is the outcome of loading a --config/--config-str seed,
// whichever of the three supported shapes it turned out to be.
type ParsedConfig struct {
	Config       v1.Config
	Annotations  map[string]string
	Architecture string
}

// envelope is the podman/docker "inspect" shape: {"Config": {...},
// "Annotations": {...}, "Architecture": "..."}. Config is a pointer so its
// absence (the direct-config shape) is distinguishable from an empty object.
type envelope struct {
	Config       *v1.Config        `json:"Config"`
	Annotations  map[string]string `json:"Annotations"`
	Architecture string            `json:"Architecture"`
}

// ParseConfig parses a --config/--config-str payload. Three shapes are
// accepted, matching what podman/docker produce plus the raw OCI config
// object:
//
//  1. A direct OCI config object, e.g. {"Entrypoint": [...]}.
//  2. A single inspect-style object, e.g. {"Config": {...}, "Architecture": "..."}.
//  3. An inspect-style array, e.g. [{"Config": {...}}, ...] — the last
//     element is used, matching podman inspect's multi-image output.
func ParseConfig(raw string) (ParsedConfig, error) {
	trimmed := bytes.TrimLeft([]byte(raw), " \t\r\n")
	if len(trimmed) == 0 {
		return ParsedConfig{}, fmt.Errorf("failed to parse config JSON: empty input")
	}

	if trimmed[0] == '[' {
		var envs []envelope
		if err := json.Unmarshal(trimmed, &envs); err != nil {
			return ParsedConfig{}, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		if len(envs) == 0 {
			return ParsedConfig{}, fmt.Errorf("inspect output is an empty array")
		}
		return fromEnvelope(envs[len(envs)-1]), nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return ParsedConfig{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if env.Config != nil {
		return fromEnvelope(env), nil
	}

	var direct v1.Config
	if err := json.Unmarshal(trimmed, &direct); err != nil {
		return ParsedConfig{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return ParsedConfig{Config: direct, Annotations: map[string]string{}}, nil
}

func fromEnvelope(env envelope) ParsedConfig {
	cfg := v1.Config{}
	if env.Config != nil {
		cfg = *env.Config
	}
	annotations := env.Annotations
	if annotations == nil {
		annotations = map[string]string{}
	}
	return ParsedConfig{
		Config:       cfg,
		Annotations:  annotations,
		Architecture: env.Architecture,
	}
}
