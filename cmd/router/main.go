package main

import (
	"fmt"
	"os"

	"github.com/LerianStudio/acsd/internal/bootstrap"
	"github.com/LerianStudio/acsd/pkg/config"
)

func main() {
	cfg, err := config.LoadRouterConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, libLogger, err := bootstrap.InitRouterLoggers(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	service, err := bootstrap.InitRouter(cfg, logger, libLogger)
	if err != nil {
		logger.Errorf("failed to initialize router: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}

	if err := service.Run(); err != nil {
		logger.Errorf("router exited: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
