package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/rationly/rationbot/internal/api"
	"github.com/rationly/rationbot/internal/bot"
	"github.com/rationly/rationbot/internal/broadcast"
	"github.com/rationly/rationbot/internal/chain"
	"github.com/rationly/rationbot/internal/config"
	"github.com/rationly/rationbot/internal/followup"
	"github.com/rationly/rationbot/internal/payment"
	"github.com/rationly/rationbot/internal/stats"
	"github.com/rationly/rationbot/internal/telegram"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting rationbot...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Telegram.Token == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Redis is optional; without it tick locks fall back to PG advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable (%v), using PG advisory locks", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatalf("Failed to authenticate bot: %v", err)
	}
	sender := telegram.NewWithBot(botAPI)
	log.Printf("Authenticated as @%s", botAPI.Self.UserName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Workers
	followupScheduler := followup.NewScheduler(db, sender, followup.Options{
		DiscoveryInterval: cfg.Followup.DiscoveryInterval(),
		DispatchInterval:  cfg.Followup.DispatchInterval(),
		OnlyStartAge:      time.Duration(cfg.Followup.OnlyStartAgeHours) * time.Hour,
		ClickedAge:        time.Duration(cfg.Followup.ClickedPaymentAgeHours) * time.Hour,
	})
	broadcastScheduler := broadcast.NewScheduler(db, sender, broadcast.Options{
		PollInterval: cfg.Broadcast.PollInterval(),
		AutoInterval: cfg.Broadcast.AutoInterval(),
		SendDelay:    cfg.Broadcast.SendDelay(),
	})
	chainEngine := chain.NewEngine(db, sender, chain.Options{
		TickInterval: cfg.Chains.TickInterval(),
		SendDelay:    cfg.Broadcast.SendDelay(),
	})
	if redisClient != nil {
		followupScheduler.SetRedisClient(redisClient)
		broadcastScheduler.SetRedisClient(redisClient)
		chainEngine.SetRedisClient(redisClient)
	}

	if err := followupScheduler.Start(); err != nil {
		log.Fatalf("Failed to start followup scheduler: %v", err)
	}
	if err := broadcastScheduler.Start(); err != nil {
		log.Fatalf("Failed to start broadcast scheduler: %v", err)
	}
	if err := chainEngine.Start(); err != nil {
		log.Fatalf("Failed to start chain engine: %v", err)
	}

	var reporter *stats.Reporter
	if cfg.Reports.Enabled {
		reporter = stats.NewReporter(db, sender, cfg.Telegram.AdminChannelID,
			time.Weekday(cfg.Reports.Weekday), cfg.Reports.Hour)
		if err := reporter.Start(); err != nil {
			log.Fatalf("Failed to start reporter: %v", err)
		}
	}

	// Admin HTTP API
	var apiServer *api.Server
	if cfg.Server.Enabled {
		apiServer = api.NewServer(cfg.Server, db, chainEngine)
		go func() {
			log.Printf("Admin API listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Admin API: %v", err)
			}
		}()
	}

	// Interactive handlers
	paymentService := payment.NewService(db, sender, cfg.Telegram.AdminChannelID,
		cfg.Payment.Amount, cfg.Payment.Details)
	b := bot.New(botAPI, db, paymentService, chainEngine, cfg.Telegram.AdminChannelID)
	go b.Run(ctx)

	log.Println("rationbot running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	followupScheduler.Stop()
	broadcastScheduler.Stop()
	chainEngine.Stop()
	if reporter != nil {
		reporter.Stop()
	}
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin API shutdown: %v", err)
		}
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("rationbot stopped")
}
