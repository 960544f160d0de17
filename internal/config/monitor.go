package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sandevgo/recall/pkg/log"
)

type MonitorConfig struct {
	Addr         string        `env:"RECALL_MONITOR_ADDR" envDefault:"127.0.0.1:8089"`
	ReadTimeout  time.Duration `env:"RECALL_MONITOR_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"RECALL_MONITOR_WRITE_TIMEOUT" envDefault:"10s"`
}

func NewMonitorConfig(ctx context.Context) *MonitorConfig {
	c := &MonitorConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Monitor config")
	}
	return c
}
