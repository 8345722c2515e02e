// Package ociimage assembles packed layer groups into an OCI image layout
// on disk and serializes that layout as a single portable archive.
package ociimage

import (
	"archive/tar"
	"bytes"
	"fmt"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"

	"github.com/chunkah/chunkah/pkg/packer"
	"github.com/chunkah/chunkah/pkg/tarlayer"
)

const (
	annotationComponent = "org.chunkah.component"
	annotationStability = "org.chunkah.stability"
)

// Options carries the caller-supplied pieces of the image configuration and
// manifest that don't come from the rootfs itself.
type Options struct {
	Architecture string
	Created      time.Time
	Labels       map[string]string
	Annotations  map[string]string
	Compression  Compression
}

// BuildImage streams every group's files into its own layer, appends them
// in group order to a fresh image, clears the resulting synthetic history
// (the source image's history isn't representative of a repack), and
// returns the assembled image along with the per-layer stability
// annotations already attached to their descriptors.
func BuildImage(rootfsPath string, groups []packer.Group, opts Options) (v1.Image, error) {
	cfg := &v1.ConfigFile{
		Architecture: opts.Architecture,
		OS:           "linux",
		Created:      v1.Time{Time: opts.Created},
		Config: v1.Config{
			Labels: opts.Labels,
		},
	}

	img, err := mutate.ConfigFile(empty.Image, cfg)
	if err != nil {
		return nil, fmt.Errorf("setting base image config: %w", err)
	}

	for _, g := range groups {
		if g.Files.Len() == 0 {
			continue
		}

		tarBytes, err := buildLayerTar(rootfsPath, g)
		if err != nil {
			return nil, fmt.Errorf("building layer for %q: %w", g.Name, err)
		}

		l, err := newLayer(tarBytes, opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("preparing layer for %q: %w", g.Name, err)
		}

		img, err = mutate.Append(img, mutate.Addendum{
			Layer: l,
			Annotations: map[string]string{
				annotationComponent: g.Name,
				annotationStability: fmt.Sprintf("%.3f", g.Stability),
			},
			History: v1.History{
				Created:   v1.Time{Time: opts.Created},
				CreatedBy: "chunkah build",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("appending layer for %q: %w", g.Name, err)
		}
	}

	img, err = clearHistory(img)
	if err != nil {
		return nil, fmt.Errorf("clearing image history: %w", err)
	}

	if len(opts.Annotations) > 0 {
		img = mutate.Annotations(img, opts.Annotations).(v1.Image)
	}

	return img, nil
}

func clearHistory(img v1.Image) (v1.Image, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg = cfg.DeepCopy()
	cfg.History = nil
	return mutate.ConfigFile(img, cfg)
}

func buildLayerTar(rootfsPath string, g packer.Group) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if err := tarlayer.WriteFiles(tw, rootfsPath, g.Files, g.MtimeClamp); err != nil {
		return nil, fmt.Errorf("writing layer contents: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing layer tar: %w", err)
	}
	return buf.Bytes(), nil
}
