package ociimage

import (
	"fmt"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/layout"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
)

// WriteLayout writes img as a single-manifest OCI image layout directory at
// dir (created if absent), via the collaborator OCI layout library.
func WriteLayout(dir string, img v1.Image) error {
	idx := mutate.AppendManifests(empty.Index, mutate.IndexAddendum{Add: img})

	if _, err := layout.Write(dir, idx); err != nil {
		return fmt.Errorf("writing OCI layout to %s: %w", dir, err)
	}
	return nil
}
