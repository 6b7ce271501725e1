package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tdex-network/tdex-feeder/internal/config"
	"github.com/tdex-network/tdex-feeder/internal/core/application"
	journalstore "github.com/tdex-network/tdex-feeder/internal/infrastructure/journal/store/badger"
	httpinterface "github.com/tdex-network/tdex-feeder/internal/interfaces/http"
	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
	"github.com/tdex-network/tdex-feeder/pkg/stats"

	_ "github.com/tdex-network/tdex-feeder/pkg/marketfeed/bitmex"
	_ "github.com/tdex-network/tdex-feeder/pkg/marketfeed/relay"
)

const statsFile = "stats"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	app = &cobra.Command{
		Use:          "feederd",
		Short:        "market feed daemon",
		Long:         "feederd keeps the configured market feeds connected and journals their lifecycle",
		Version:      formatVersion(),
		RunE:         action,
		SilenceUsage: true,
	}
)

func main() {
	if err := app.Execute(); err != nil {
		log.Fatal(err)
	}
}

func action(_ *cobra.Command, _ []string) error {
	if err := config.InitConfig(); err != nil {
		return err
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	specs, err := application.ParseFeedSpecs(config.GetString(config.FeedsKey))
	if err != nil {
		return err
	}

	datadir := config.GetDatadir()
	journal, err := journalstore.NewJournalStore(
		filepath.Join(datadir, config.DbLocation), log.New(),
	)
	if err != nil {
		return err
	}
	defer journal.Close()

	registry := marketfeed.NewRegistry(config.GetMarketfeedConfig())
	log.Debugf("available feeds: %v", marketfeed.RegisteredFeeds())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feedSvc := application.NewFeedService(
		registry, journal, specs, config.GetFeedOptions(),
	)
	if err := feedSvc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start feeds: %w", err)
	}
	defer feedSvc.Stop()

	httpSvc := httpinterface.NewService(
		feedSvc, config.GetInt(config.HTTPListeningPortKey),
	)
	if err := httpSvc.Start(); err != nil {
		return err
	}
	defer httpSvc.Stop()

	if interval := config.GetInt(config.StatsIntervalKey); interval > 0 {
		stats.EnableStatistics(
			ctx, time.Duration(interval)*time.Second, registry,
			filepath.Join(datadir, statsFile),
		)
	}

	log.Info("feeder daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down daemon")
	return nil
}

func formatVersion() string {
	return fmt.Sprintf(
		"Version: %s\nCommit: %s\nDate: %s",
		version, commit, date,
	)
}
