// Package cli wires the build pipeline to a cobra command, the way the
// teacher's pkg/commands package wires clip's archive operations.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chunkah/chunkah/pkg/pipeline"
)

type buildOptions struct {
	rootfs           string
	output           string
	maxLayers        int
	configPath       string
	configStr        string
	labels           []string
	annotations      []string
	sourceDateEpoch  int64
	hasEpoch         bool
	compressed       bool
	compressionLevel int
	arch             string
	skipSpecialFiles bool
	prune            []string
}

var buildOpts = &buildOptions{}

// BuildCmd is the "chunkah build" subcommand: rootfs in, OCI archive out.
var BuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a component-layered OCI image archive from a rootfs",
	RunE:  runBuild,
}

func init() {
	flags := BuildCmd.Flags()

	flags.StringVar(&buildOpts.rootfs, "rootfs", os.Getenv("CHUNKAH_ROOTFS"), "path to the rootfs to build from")
	flags.StringVarP(&buildOpts.output, "output", "o", "", "output archive path (stdout if omitted)")
	flags.IntVar(&buildOpts.maxLayers, "max-layers", 64, "maximum number of layers to output")
	flags.StringVar(&buildOpts.configPath, "config", "", "read image config from a JSON file (for an inspect-style array, the last element is used)")
	flags.StringVar(&buildOpts.configStr, "config-str", os.Getenv("CHUNKAH_CONFIG_STR"), "read image config from a JSON string (for an inspect-style array, the last element is used)")
	flags.StringArrayVar(&buildOpts.labels, "label", nil, "add a label to the image (KEY=VALUE, repeatable)")
	flags.StringArrayVar(&buildOpts.annotations, "annotation", nil, "add an annotation to the image manifest (KEY=VALUE, repeatable)")
	flags.Int64Var(&buildOpts.sourceDateEpoch, "source-date-epoch", 0, "unix timestamp used as the image creation time and mtime ceiling")
	flags.BoolVar(&buildOpts.compressed, "compressed", false, "gzip-compress layers and the outer archive")
	flags.IntVar(&buildOpts.compressionLevel, "compression-level", 6, "gzip compression level (0-9)")
	flags.StringVar(&buildOpts.arch, "arch", "", "override target architecture (normalized to Go-arch form)")
	flags.BoolVar(&buildOpts.skipSpecialFiles, "skip-special-files", false, "skip sockets/FIFOs/device nodes instead of failing")
	flags.StringArrayVar(&buildOpts.prune, "prune", nil, "prune a path from the scan (trailing / = children only)")

	_ = BuildCmd.MarkFlagRequired("rootfs")
	BuildCmd.MarkFlagsMutuallyExclusive("config", "config-str")

	if raw, ok := os.LookupEnv("SOURCE_DATE_EPOCH"); ok {
		if parsed, err := parseEpochEnv(raw); err == nil {
			buildOpts.sourceDateEpoch = parsed
			buildOpts.hasEpoch = true
		}
	}
}

func parseEpochEnv(raw string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(raw, "%d", &v)
	return v, err
}

func runBuild(cmd *cobra.Command, args []string) error {
	opts := pipeline.Options{
		RootfsPath:       buildOpts.rootfs,
		MaxLayers:        buildOpts.maxLayers,
		ConfigPath:       buildOpts.configPath,
		ConfigStr:        buildOpts.configStr,
		Labels:           buildOpts.labels,
		Annotations:      buildOpts.annotations,
		Compressed:       buildOpts.compressed,
		CompressionLevel: buildOpts.compressionLevel,
		Arch:             buildOpts.arch,
		SkipSpecialFiles: buildOpts.skipSpecialFiles,
		PrunePaths:       buildOpts.prune,
	}

	if cmd.Flags().Changed("source-date-epoch") || buildOpts.hasEpoch {
		epoch := uint64(buildOpts.sourceDateEpoch)
		opts.SourceDateEpoch = &epoch
	}

	if buildOpts.output == "" {
		opts.Output = os.Stdout
		return runPipeline(opts)
	}

	f, err := os.Create(buildOpts.output)
	if err != nil {
		return fmt.Errorf("creating output file %s: %w", buildOpts.output, err)
	}
	defer f.Close()
	opts.Output = f
	return runPipeline(opts)
}

func runPipeline(opts pipeline.Options) error {
	if err := pipeline.Run(opts); err != nil {
		log.Error().Err(err).Msg("build failed")
		return err
	}
	return nil
}
