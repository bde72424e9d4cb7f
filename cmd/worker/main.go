package main

import (
	"fmt"
	"os"

	"github.com/LerianStudio/acsd/internal/bootstrap"
	"github.com/LerianStudio/acsd/pkg/config"
	"github.com/LerianStudio/acsd/pkg/mlog"
	"github.com/LerianStudio/acsd/pkg/mzap"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := mlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = mlog.InfoLevel
	}

	logger, err := mzap.NewZapLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	service, err := bootstrap.InitWorker(cfg, logger)
	if err != nil {
		logger.Errorf("failed to initialize worker: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}

	if err := service.Run(); err != nil {
		logger.Errorf("worker exited: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
