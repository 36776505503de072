package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cmdr/internal/app"
	"cmdr/internal/cli"
	"cmdr/internal/config"
	"cmdr/internal/errdef"
)

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errdef.ExitCode(err))
	}

	setupLogging(opts.Verbose)

	cfg, err := config.Load(opts.Root)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(errdef.ExitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(opts, cfg).Run(ctx); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(errdef.ExitCode(err))
	}
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
