// The worker binary runs the post-purchase workflow engine without the
// HTTP API. It watches every active campaign's purchase stream and
// executes follow-up workflows, so the API server can be scaled or
// restarted independently of in-flight delays.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/brightwave/campaign-engine/internal/campaign"
	"github.com/brightwave/campaign-engine/internal/config"
	"github.com/brightwave/campaign-engine/internal/dispatch"
	"github.com/brightwave/campaign-engine/internal/pkg/logger"
	"github.com/brightwave/campaign-engine/internal/store"
	"github.com/brightwave/campaign-engine/internal/stream"
	"github.com/brightwave/campaign-engine/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	rescanInterval := flag.Duration("rescan", time.Minute, "how often to re-read campaign statuses")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("ping database", "error", err.Error())
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Error("ping redis", "error", err.Error())
		os.Exit(1)
	}

	attrStore := store.New(db)
	campaignStore := campaign.NewStore(db)

	var sender dispatch.Sender = dispatch.LogSender{}
	if cfg.SES.Enabled {
		sesSender, err := dispatch.NewSESSender(context.Background(),
			cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey,
			cfg.SES.FromName, cfg.SES.FromEmail)
		if err != nil {
			logger.Error("init ses sender", "error", err.Error())
			os.Exit(1)
		}
		sender = sesSender
	}

	subscriber := stream.NewSubscriber(rdb)
	publisher := stream.NewPublisher(rdb)

	engine := workflow.NewEngine(campaignStore, attrStore, campaignStore, sender, subscriber, publisher)
	engine.SetFallbackDelay(cfg.Workflow.FallbackDelay())
	engine.Start()
	logger.Info("workflow worker started")

	// Watch loop: follow campaign status changes made through the API.
	// Watch and Unwatch are idempotent so the rescan can be naive.
	syncWatches := func() {
		campaigns, err := campaignStore.List(context.Background())
		if err != nil {
			logger.Error("list campaigns", "error", err.Error())
			return
		}
		for _, c := range campaigns {
			if c.Status == "active" {
				if err := engine.Watch(c.ID.String()); err != nil {
					logger.Error("watch campaign", "campaign_id", c.ID.String(), "error", err.Error())
				}
			} else {
				engine.Unwatch(c.ID.String())
			}
		}
	}
	syncWatches()

	ticker := time.NewTicker(*rescanInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			syncWatches()
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			engine.Stop()
			subscriber.Close()
			logger.Info("shutdown complete")
			return
		}
	}
}
