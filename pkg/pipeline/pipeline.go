// Package pipeline wires the scanner, attribution engine, packer, and OCI
// writer into the single end-to-end operation the CLI exposes: rootfs in,
// OCI archive out.
package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chunkah/chunkah/pkg/buildconfig"
	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/components/alpmrepo"
	"github.com/chunkah/chunkah/pkg/components/bigfilesrepo"
	"github.com/chunkah/chunkah/pkg/components/rpmrepo"
	"github.com/chunkah/chunkah/pkg/components/xattrrepo"
	"github.com/chunkah/chunkah/pkg/ociimage"
	"github.com/chunkah/chunkah/pkg/packer"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

// Options mirrors the CLI's build flags; see pkg/cli for the flag table
// these come from.
type Options struct {
	RootfsPath string
	Output     io.Writer
	MaxLayers  int

	ConfigPath string
	ConfigStr  string

	Labels      []string
	Annotations []string

	SourceDateEpoch  *uint64
	Compressed       bool
	CompressionLevel int

	Arch string

	SkipSpecialFiles bool
	PrunePaths       []string
}

// Run executes the full build: scan, attribute, pack, emit. Every acquired
// resource (rootfs handle is implicit in os file APIs, the OCI build
// tempdir) is released on every exit path, including error.
func Run(opts Options) error {
	epoch := buildconfig.ResolveEpoch(opts.SourceDateEpoch)
	created, err := buildconfig.ResolveCreated(epoch)
	if err != nil {
		return fmt.Errorf("resolving created timestamp: %w", err)
	}

	parsed, err := loadSeedConfig(opts)
	if err != nil {
		return err
	}

	arch := buildconfig.NormalizeArch(opts.Arch, parsed.Architecture)

	annotations, err := buildconfig.MergeKeyValuePairs(opts.Annotations, parsed.Annotations)
	if err != nil {
		return fmt.Errorf("parsing annotations: %w", err)
	}

	cfg, err := buildconfig.ApplyLabelOverrides(parsed.Config, opts.Labels)
	if err != nil {
		return err
	}

	log.Info().Str("rootfs", opts.RootfsPath).Msg("scanning rootfs")
	files, err := scanRootfs(opts)
	if err != nil {
		return fmt.Errorf("scanning %s for files: %w", opts.RootfsPath, err)
	}

	repos, err := loadRepos(opts.RootfsPath, files, epoch)
	if err != nil {
		return fmt.Errorf("loading components: %w", err)
	}

	engine := components.NewEngine(repos, epoch)
	if err := engine.RequireNonEmpty(); err != nil {
		return err
	}

	comps := engine.IntoComponents(files)
	log.Info().Int("components", len(comps)).Msg("attributed components")

	groups := packer.Pack(comps, opts.MaxLayers)
	log.Info().Int("layers", len(groups)).Msg("packed layers")

	compression := ociimage.Compression{Enabled: opts.Compressed, Level: opts.CompressionLevel}

	img, err := ociimage.BuildImage(opts.RootfsPath, groups, ociimage.Options{
		Architecture: arch,
		Created:      created,
		Labels:       cfg.Labels,
		Annotations:  annotations,
		Compression:  compression,
	})
	if err != nil {
		return fmt.Errorf("building OCI image: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "chunkah-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("creating OCI build tempdir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := ociimage.WriteLayout(tempDir, img); err != nil {
		return err
	}

	if err := ociimage.WriteArchive(tempDir, opts.Output, compression); err != nil {
		return fmt.Errorf("writing output archive: %w", err)
	}

	return nil
}

func loadSeedConfig(opts Options) (buildconfig.ParsedConfig, error) {
	switch {
	case opts.ConfigPath != "":
		content, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return buildconfig.ParsedConfig{}, fmt.Errorf("failed to read config file: %s: %w", opts.ConfigPath, err)
		}
		parsed, err := buildconfig.ParseConfig(string(content))
		if err != nil {
			return buildconfig.ParsedConfig{}, fmt.Errorf("failed to parse config file: %s: %w", opts.ConfigPath, err)
		}
		return parsed, nil
	case opts.ConfigStr != "":
		parsed, err := buildconfig.ParseConfig(opts.ConfigStr)
		if err != nil {
			return buildconfig.ParsedConfig{}, fmt.Errorf("failed to parse config string: %w", err)
		}
		return parsed, nil
	default:
		return buildconfig.ParsedConfig{}, nil
	}
}

func scanRootfs(opts Options) (*rootfs.FileMap, error) {
	scanner := rootfs.New(opts.RootfsPath).SkipSpecialFiles(opts.SkipSpecialFiles)
	scanner, err := scanner.Prune(opts.PrunePaths)
	if err != nil {
		return nil, err
	}
	return scanner.Scan()
}

// loadRepos runs every attribution backend over the scanned rootfs,
// collecting the ones that actually found something to attribute. Every
// backend, xattrrepo included, opts in only when its evidence is present
// (a user.component xattr, a package database, a file over the big-file
// threshold); absence is not an error.
func loadRepos(rootfsPath string, files *rootfs.FileMap, epoch uint64) ([]components.Repo, error) {
	var repos []components.Repo

	xattr, err := xattrrepo.Load(files, epoch)
	if err != nil {
		return nil, fmt.Errorf("loading xattr backend: %w", err)
	}
	if xattr != nil {
		repos = append(repos, xattr)
	}

	rpm, err := rpmrepo.Load(rootfsPath, epoch)
	if err != nil {
		return nil, fmt.Errorf("loading rpm backend: %w", err)
	}
	if rpm != nil {
		repos = append(repos, rpm)
	}

	alpm, err := alpmrepo.Load(rootfsPath)
	if err != nil {
		return nil, fmt.Errorf("loading alpm backend: %w", err)
	}
	if alpm != nil {
		repos = append(repos, alpm)
	}

	bigfiles, err := bigfilesrepo.Load(rootfsPath, files, bigfilesrepo.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("loading bigfiles backend: %w", err)
	}
	if bigfiles != nil {
		repos = append(repos, bigfiles)
	}

	return repos, nil
}
