package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) *Config { return &cfg }),
	fx.Provide(NewGamificationConfigHolder),
)
