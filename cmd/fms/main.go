package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/alarmstore"
	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/field"
	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fmsconfig"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (default: search ./config.yaml, data/config.yaml, etc.)")
	writeExample := flag.String("write-example-config", "", "Write an example config file to the given path and exit")
	flag.Parse()

	if *writeExample != "" {
		if err := fmsconfig.SaveExampleConfig(*writeExample); err != nil {
			log.Fatalf("failed to write example config: %v", err)
		}
		log.Printf("wrote example config to %s", *writeExample)
		return
	}

	cfg := fmsconfig.Load(*configFile)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init zap: %v", err)
	}
	defer logger.Sync()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("database open error: %v", err)
	}

	store := alarmstore.New(db, logger)
	if err := store.Migrate(); err != nil {
		log.Fatalf("alarm audit migrate error: %v", err)
	}
	logger.Info("alarm audit store initialized", zap.String("db_path", cfg.DBPath))

	f := field.New(cfg.ToFieldConfig(), store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- f.Run(ctx)
	}()

	logger.Info("nevermore-fms field server starting",
		zap.Int("tcp_port", cfg.TCPPort), zap.Int("udp_in_port", cfg.UDPInPort), zap.Int("udp_out_port", cfg.UDPOutPort))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received, shutting down...")
		cancel()
		select {
		case err := <-runErr:
			if err != nil {
				logger.Warn("field run returned errors during shutdown", zap.Error(err))
			}
		case <-time.After(8 * time.Second):
			logger.Warn("field run did not stop within shutdown timeout")
		}
	case err := <-runErr:
		if err != nil {
			logger.Error("field run failed", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("nevermore-fms field server stopped cleanly")
}
