package scheduler

import (
	"time"

	"github.com/hilive/hilive/internal/config"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval      time.Duration
	GhostTimeout     time.Duration
	CleanupThreshold time.Duration
	BatchSize        int
	EnabledJobs      []string
	VIPBonusCoins    int64
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      5 * time.Minute,
		GhostTimeout:     15 * time.Minute,
		CleanupThreshold: 20 * time.Minute,
		BatchSize:        100,
		VIPBonusCoins:    100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.GhostTimeout <= 0 {
		c.GhostTimeout = defaults.GhostTimeout
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = defaults.CleanupThreshold
	}
	// Reclaim must lag the mark pass, otherwise a session could be torn
	// down the moment it is flagged.
	if c.CleanupThreshold <= c.GhostTimeout {
		c.CleanupThreshold = c.GhostTimeout + defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.VIPBonusCoins <= 0 {
		c.VIPBonusCoins = defaults.VIPBonusCoins
	}
	return c
}

func ProvideConfig(cfg *config.Config) Config {
	return Config{
		RunInterval:      cfg.SweepInterval,
		GhostTimeout:     cfg.GhostTimeout,
		CleanupThreshold: cfg.CleanupThreshold,
		BatchSize:        cfg.SweepBatchSize,
		EnabledJobs:      cfg.EnabledJobs,
		VIPBonusCoins:    cfg.VIPDailyBonusCoins,
	}
}
