package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"signal-screenerv1/config"
	"signal-screenerv1/internal/bot"
	"signal-screenerv1/internal/detector"
	"signal-screenerv1/internal/dispatch"
	"signal-screenerv1/internal/logger"
	"signal-screenerv1/internal/marketdata"
	"signal-screenerv1/internal/metrics"
	"signal-screenerv1/internal/model"
	"signal-screenerv1/internal/notification"
	"signal-screenerv1/internal/occurrence"
	"signal-screenerv1/internal/orchestrator"
	"signal-screenerv1/internal/subscription"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[screener] starting...")

	cfg := config.Load()
	logger.Init("screener", slog.LevelInfo)

	grans, err := model.ParseGranularities(cfg.Granularities)
	if err != nil {
		log.Fatalf("[screener] invalid GRANULARITIES: %v", err)
	}
	log.Printf("[screener] screening granularities: %v", grans)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealth()
	metrics.Serve(cfg.MetricsAddr, health)

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Occurrence store (consolidation dedup) ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[screener] creating store dir: %v", err)
	}
	store, err := openOccurrenceStore(cfg)
	if err != nil {
		log.Fatalf("[screener] occurrence store init failed: %v", err)
	}
	defer store.Close()
	log.Printf("[screener] occurrence store ready (%s)", cfg.OccurrenceBackend)

	// ---- Subscriber registry ----
	if err := os.MkdirAll(filepath.Dir(cfg.UsersPath), 0o755); err != nil {
		log.Fatalf("[screener] creating registry dir: %v", err)
	}
	reg, err := subscription.Open(cfg.UsersPath, cfg.PrefsPath)
	if err != nil {
		log.Fatalf("[screener] subscriber registry init failed: %v", err)
	}
	prom.Subscribers.Set(float64(reg.Count()))
	log.Printf("[screener] registry loaded: %d subscribers", reg.Count())

	// ---- Transport, dispatcher, admission ----
	tg := notification.NewTelegram(cfg.BotToken)
	disp := dispatch.New(reg, tg, prom, cfg.AdminID,
		dispatch.WithWorkers(cfg.SendWorkers))
	adm := subscription.NewAdmission(cfg.SubscribeSecret)

	// ---- Detectors ----
	declineEligible := splitCSV(cfg.DeclineInstruments)
	detectors := []detector.Detector{
		detector.NewMomentum(),
		detector.NewChannelCross(),
		detector.NewConsolidation(store),
		detector.NewConsecutiveDecline(declineEligible),
	}

	// ---- Orchestrator ----
	provider := marketdata.NewBitget(cfg.ExchangeURL)
	orch := orchestrator.New(provider, detectors, disp, prom, grans,
		orchestrator.WithWorkers(cfg.MaxWorkers))

	// ---- Inbound listener ----
	listener := bot.New(tg, reg, adm, disp, prom, health, cfg.AdminID)
	go listener.Run(ctx)

	// ---- Startup announcement ----
	disp.Broadcast(ctx, "Screener is back online. Alerts resume this cycle.")

	// ---- Detection cycles: once at startup, then on the interval ----
	go func() {
		runCycle(ctx, orch, health)
		ticker := time.NewTicker(cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCycle(ctx, orch, health)
			}
		}
	}()
	log.Printf("[screener] cycle loop started (interval %s, %d fetch workers, %d send workers)",
		cfg.CycleInterval, cfg.MaxWorkers, cfg.SendWorkers)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[screener] shutdown signal received, cleaning up...")
	cancel()
	log.Println("[screener] shutdown complete.")
}

func runCycle(ctx context.Context, orch *orchestrator.Orchestrator, health *metrics.Health) {
	err := orch.RunCycle(ctx)
	health.SetLastCycle(err == nil)
	if err != nil && ctx.Err() == nil {
		slog.Error("detection cycle failed", "error", err)
	}
}

func openOccurrenceStore(cfg *config.Config) (occurrence.Store, error) {
	switch cfg.OccurrenceBackend {
	case "redis":
		return occurrence.NewRedis(occurrence.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return occurrence.NewSQLite(cfg.SQLitePath)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
