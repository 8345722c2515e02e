package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chunkah/chunkah/pkg/cli"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	rootCmd := &cobra.Command{
		Use:   "chunkah",
		Short: "Build component-layered OCI image archives from a rootfs",
	}
	rootCmd.AddCommand(cli.BuildCmd)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		log.Warn().Msg("interrupted, cleaning up")
		os.Exit(1)
	}()

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("chunkah failed")
	}
}
