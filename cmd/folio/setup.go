package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"folio/internal/infrastructure/config"
	"folio/internal/infrastructure/logger"
	"folio/internal/infrastructure/svc"
)

// bootstrap 读取配置、初始化日志并构建全部组件
func bootstrap(ctx context.Context, quiet bool) (*svc.ServiceContext, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.App.LogLevel
	if quiet {
		level = "warn"
	}
	logger.Setup(level, cfg.App.LogPretty)
	log.Debug().Str("config", *configPath).Msg("config loaded")
	return svc.New(ctx, cfg)
}
