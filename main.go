package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"matchflow/config"
	"matchflow/internal/catalog"
	"matchflow/internal/feedsapi"
	"matchflow/internal/media"
	"matchflow/internal/metrics"
	"matchflow/internal/queue"
	"matchflow/logger"
	"matchflow/processor"
	"matchflow/reader/sddp"
	"matchflow/writer"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	flag.Parse()

	log := logger.GetLogger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	flags, err := config.LoadFlags()
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to load feature flags")
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if flags.DebugMode {
		level = "debug"
	}
	if err := log.Configure(level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithComponent("main").WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"name":    cfg.Matchflow.Name,
		"version": cfg.Matchflow.Version,
		"flags":   fmt.Sprintf("%+v", *flags),
	}).Info("starting matchflow")

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace)
	}
	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.StartReport(ctx, log, cfg.Logging.ReportInterval)

	q, err := buildQueue(cfg)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to initialize work queue")
		os.Exit(1)
	}

	gen, err := buildMediaGenerator(cfg)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to initialize media generator")
		os.Exit(1)
	}

	cat := catalog.NewClient(
		cfg.Catalog.BaseURL,
		cfg.Catalog.Token,
		cfg.Catalog.Timeout,
		cfg.Catalog.RequestsPerSecond,
		cfg.Catalog.Burst,
	)

	feeds := feedsapi.NewClient(
		cfg.FeedsAPI.BaseURL,
		cfg.FeedsAPI.AuthURL,
		cfg.FeedsAPI.Outlet,
		cfg.FeedsAPI.Secret,
		cfg.FeedsAPI.Competition,
		cfg.FeedsAPI.Timeout,
	)

	var scores processor.ScoreLookup
	if cfg.FeedsAPI.BaseURL != "" {
		if err := feeds.Authenticate(ctx); err != nil {
			log.WithComponent("main").WithError(err).Warn("feeds api authentication failed, goal scorelines unavailable")
		} else {
			scores = feeds
		}
	}

	var sink writer.RowSink
	if flags.SaveToSheet {
		if cfg.Sink.BaseURL == "" {
			log.WithComponent("main").Error("sheet sink enabled but sink.base_url is empty")
			os.Exit(1)
		}
		sink = writer.NewSheetSink(cfg.Sink.BaseURL, cfg.Sink.SheetID, cfg.Sink.Tab, cfg.Sink.Timeout)
	}

	var livescore *writer.LivescoreStore
	if flags.SaveLivescoreEvents {
		livescore = writer.NewLivescoreStore(cfg.Archive.LivescoreDir)
	}

	var archive *writer.ParquetArchive
	if flags.SaveEnrichedParquet && cfg.Archive.Parquet.Enabled {
		archive, err = writer.NewParquetArchive(cfg.Archive.Parquet)
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to initialize parquet archive")
			os.Exit(1)
		}
		if err := archive.Start(ctx); err != nil {
			log.WithComponent("main").WithError(err).Error("failed to start parquet archive")
			os.Exit(1)
		}
	}

	enricher := processor.NewEnricher(cat, gen, scores, flags)
	proc := processor.NewProcessor(cfg.Processor, cfg.Sink, flags, q, enricher, sink, livescore, archive)
	if err := proc.Start(ctx); err != nil {
		log.WithComponent("main").WithError(err).Error("failed to start processor")
		os.Exit(1)
	}

	fixtures, err := resolveFixtures(ctx, cfg, feeds)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to resolve fixtures")
		os.Exit(1)
	}
	if len(fixtures) == 0 {
		log.WithComponent("main").Info("no fixtures scheduled, nothing to stream")
	}

	var wg sync.WaitGroup
	for _, fixture := range fixtures {
		wg.Add(1)
		go func(fixtureUUID string) {
			defer wg.Done()
			superviseFeed(ctx, cfg, q, fixtureUUID)
		}(fixture)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.WithComponent("main").WithFields(logger.Fields{"signal": received.String()}).Info("shutdown signal received")

	cancel()
	wg.Wait()

	q.Close()
	proc.Stop()
	if archive != nil {
		archive.Stop()
	}
	if err := gen.Close(); err != nil {
		log.WithComponent("main").WithError(err).Warn("failed to close media generator")
	}

	log.WithComponent("main").Info("matchflow stopped")
}

func buildQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Queue.Redis.Addr})
		consumer := cfg.Queue.Redis.Consumer
		if consumer == "" {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "matchflow"
			}
			consumer = fmt.Sprintf("%s-%d", hostname, os.Getpid())
		}
		return queue.NewRedisQueue(client, cfg.Queue.Redis.Stream, cfg.Queue.Redis.Group, consumer, cfg.Queue.Redis.Block)
	default:
		return queue.NewMemoryQueue(cfg.Queue.Buffer), nil
	}
}

func buildMediaGenerator(cfg *config.Config) (media.Generator, error) {
	switch cfg.Media.Transport {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Media.Redis.Addr})
		return media.NewRedisGenerator(client, cfg.Media.Redis.Stream), nil
	case "kafka":
		return media.NewKafkaGenerator(cfg.Media.Kafka.Brokers, cfg.Media.Kafka.Topic)
	default:
		return media.NopGenerator{}, nil
	}
}

// resolveFixtures returns the configured fixture, or discovers today's
// fixtures from the stats API when none is configured.
func resolveFixtures(ctx context.Context, cfg *config.Config, feeds *feedsapi.Client) ([]string, error) {
	if cfg.Feed.FixtureUUID != "" {
		return []string{cfg.Feed.FixtureUUID}, nil
	}
	if cfg.FeedsAPI.BaseURL == "" {
		return nil, fmt.Errorf("feed.fixture_uuid is empty and feeds_api is not configured for discovery")
	}

	tournamentID, err := feeds.ActiveTournamentCalendarID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tournament calendar: %w", err)
	}
	fixtures, err := feeds.TodayFixtureUUIDs(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to discover today's fixtures: %w", err)
	}

	logger.GetLogger().WithComponent("main").WithFields(logger.Fields{
		"tournament": tournamentID,
		"fixtures":   len(fixtures),
	}).Info("discovered today's fixtures")
	return fixtures, nil
}

// superviseFeed keeps one fixture's feed session alive, reconnecting on
// transient transport failures until the context is cancelled. Credential
// rejection is fatal for the fixture.
func superviseFeed(ctx context.Context, cfg *config.Config, q queue.Queue, fixtureUUID string) {
	log := logger.GetLogger().WithComponent("feed_supervisor").WithFields(logger.Fields{
		"fixture": fixtureUUID,
	})

	feedCfg := cfg.Feed
	feedCfg.FixtureUUID = fixtureUUID

	var frameLog sddp.FrameLog
	if feedCfg.FrameLogDir != "" {
		fileLog, err := sddp.NewFileFrameLog(feedCfg.FrameLogDir, fixtureUUID)
		if err != nil {
			log.WithError(err).Error("failed to open frame log, buffering in memory")
			frameLog = &sddp.MemoryFrameLog{}
		} else {
			defer fileLog.Close()
			frameLog = fileLog
		}
	} else {
		frameLog = &sddp.MemoryFrameLog{}
	}

	client := sddp.NewClient(feedCfg, q, frameLog)

	for {
		err := client.Run(ctx)
		if err == nil {
			log.Info("feed session ended cleanly")
			return
		}
		if !sddp.IsRetryable(err) {
			log.WithError(err).Error("feed session failed permanently")
			return
		}

		log.WithError(err).WithFields(logger.Fields{
			"retry_in": feedCfg.ReconnectDelay.String(),
		}).Warn("feed session lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(feedCfg.ReconnectDelay):
		}
	}
}
