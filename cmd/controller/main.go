package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-policy/internal/adminrpc"
	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/config"
	"github.com/danielpatrickdp/adaptive-policy/internal/coordinator"
	"github.com/danielpatrickdp/adaptive-policy/internal/monitor"
	"github.com/danielpatrickdp/adaptive-policy/internal/report"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/scheduler"
)

// #region main

func main() {
	_ = godotenv.Load()

	cfgPath := envOr("POLICY_CONFIG", "config.yml")
	adminAddr := envOr("ADMIN_ADDR", "localhost:50061")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", cfgPath, err)
	}
	dbPath := envOr("POLICY_DB", cfg.Paths.Database)

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create data dir: %v", err)
		}
	}

	// Initialize archive
	store, err := archive.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure version 1 exists
	seeded, err := store.SeedIfEmpty(ctx, cfg.InitialPolicy)
	if err != nil {
		log.Fatalf("failed to seed policy: %v", err)
	}
	if seeded {
		log.Println("No policy versions found, seeded version 1 from initial_policy")
	}

	sink, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("failed to configure report sink: %v", err)
	}

	controller := safety.NewController(store, cfg.SafetyThresholds)
	coord := coordinator.New(store, controller, coordinator.Config{
		WindowSize: cfg.WindowSize(),
		Thresholds: cfg.StateThresholds,
		Rules:      cfg.EvolutionRules,
	}, sink)

	sched, err := scheduler.New(coord, store, scheduler.Config{
		CheckInterval:   cfg.Scheduler.CheckInterval(),
		MinInteractions: cfg.Scheduler.MinInteractions,
	})
	if err != nil {
		log.Fatalf("invalid scheduler config: %v", err)
	}

	limits := monitor.DefaultHealthLimits()
	limits.MinRecentVolume = cfg.Scheduler.MinInteractions
	limits.VolumeWindow = cfg.Scheduler.TimeWindow()
	mon := monitor.New(store, limits)

	// Admin surface
	lis, err := net.Listen("tcp", adminAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", adminAddr, err)
	}
	gs := grpc.NewServer()
	adminrpc.RegisterAdminServer(gs, adminrpc.NewServer(controller, sched, mon))
	go func() {
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("admin server stopped: %v", err)
		}
	}()

	killed, err := controller.IsKilled(ctx)
	if err != nil {
		log.Fatalf("failed to read status: %v", err)
	}
	if killed {
		log.Println("System is killed; scheduler will not start. Admin surface remains available.")
	} else if err := sched.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	log.Println("Adaptive Policy Controller ready.")
	log.Printf("  DB: %s | Admin: %s | Check every %s", dbPath, adminAddr, cfg.Scheduler.CheckInterval())

	<-ctx.Done()
	log.Println("Shutting down...")
	sched.Stop()
	gs.GracefulStop()
}

// #endregion main

// #region helpers

func buildSink(cfg *config.Config) (report.Sink, error) {
	sinks := report.MultiSink{}
	if cfg.Paths.ReportsDir != "" {
		sinks = append(sinks, report.FileSink{Dir: cfg.Paths.ReportsDir})
	}
	if obj := cfg.ObjectStore; obj.Enabled() {
		s3, err := report.NewS3Sink(report.S3Config{
			Endpoint:  obj.Endpoint,
			Region:    obj.Region,
			AccessKey: envOr("POLICY_S3_ACCESS_KEY", obj.AccessKey),
			SecretKey: envOr("POLICY_S3_SECRET_KEY", obj.SecretKey),
			Bucket:    obj.Bucket,
			UseSSL:    obj.UseSSL,
			Prefix:    obj.Prefix,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
