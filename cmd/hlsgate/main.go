// SPDX-License-Identifier: MIT

// hlsgate is a transparent HLS proxy: it fetches upstream playlists and
// segments on behalf of a player, rewrites playlist URIs through itself and,
// when the client supplies keys, strips SAMPLE-AES / CENC protection from
// segments on the fly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hlsgate/hlsgate/internal/analytics"
	"github.com/hlsgate/hlsgate/internal/api"
	"github.com/hlsgate/hlsgate/internal/config"
	"github.com/hlsgate/hlsgate/internal/log"
	"github.com/hlsgate/hlsgate/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	if err := run(); err != nil {
		log.WithComponent("main").Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "hlsgate"})
	logger := log.WithComponent("main")
	logger.Info().
		Str("version", version.Version).
		Str("addr", cfg.ListenAddr()).
		Str("external_scheme", cfg.ExternalScheme).
		Str("external_host", cfg.ExternalHost).
		Msg("starting hlsgate")

	srv, err := api.New(cfg, api.WithSink(analytics.NewLogSink(512)))
	if err != nil {
		return fmt.Errorf("server setup: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
