package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GiftDef describes one entry of the gift catalog.
type GiftDef struct {
	Code         string `mapstructure:"code"`
	Name         string `mapstructure:"name"`
	PriceCoins   int64  `mapstructure:"priceCoins"`
	DiamondValue int64  `mapstructure:"diamondValue"`
}

// GamificationConfig is the operator-tunable part of the economy: the gift
// catalog and optional overrides for the level threshold tables.
type GamificationConfig struct {
	Gifts            []GiftDef `mapstructure:"gifts"`
	WealthThresholds []int64   `mapstructure:"wealthThresholds"`
	LiveThresholds   []int64   `mapstructure:"liveThresholds"`
}

func DefaultGamificationConfig() GamificationConfig {
	return GamificationConfig{
		Gifts: []GiftDef{
			{Code: "rose", Name: "Rose", PriceCoins: 10, DiamondValue: 5},
			{Code: "heart", Name: "Heart", PriceCoins: 50, DiamondValue: 25},
			{Code: "rocket", Name: "Rocket", PriceCoins: 1000, DiamondValue: 500},
			{Code: "castle", Name: "Castle", PriceCoins: 5000, DiamondValue: 2500},
		},
	}
}

type GamificationConfigHolder struct {
	current atomic.Value // holds GamificationConfig
}

// NewGamificationConfigHolder loads gamification.yml and keeps it hot-reloaded.
func NewGamificationConfigHolder() (*GamificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("gamification")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/hilive/config")
	v.AddConfigPath("/etc/hilive")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HILIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultGamificationConfig()
		v.SetDefault("gamification.gifts", defaults.Gifts)
	}

	var cfg GamificationConfig
	if err := v.UnmarshalKey("gamification", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Gifts) == 0 {
		cfg.Gifts = DefaultGamificationConfig().Gifts
	}
	if err := validateGamificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &GamificationConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GamificationConfig
		if err := v.UnmarshalKey("gamification", &updated); err != nil {
			log.Printf("[gamification-config] reload failed: %v", err)
			return
		}
		if err := validateGamificationConfig(updated); err != nil {
			log.Printf("[gamification-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[gamification-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *GamificationConfigHolder) Get() GamificationConfig {
	return h.current.Load().(GamificationConfig)
}

func validateGamificationConfig(cfg GamificationConfig) error {
	for _, g := range cfg.Gifts {
		if strings.TrimSpace(g.Code) == "" {
			return errors.New("gamification.gifts entries require a code")
		}
		if g.PriceCoins <= 0 || g.DiamondValue < 0 {
			return errors.New("gamification.gifts amounts must be positive")
		}
	}
	if err := validateAscending("gamification.wealthThresholds", cfg.WealthThresholds); err != nil {
		return err
	}
	return validateAscending("gamification.liveThresholds", cfg.LiveThresholds)
}

func validateAscending(name string, table []int64) error {
	if len(table) == 0 {
		return nil
	}
	if table[0] != 0 {
		return errors.New(name + " must start at 0")
	}
	for i := 1; i < len(table); i++ {
		if table[i] <= table[i-1] {
			return errors.New(name + " must be strictly ascending")
		}
	}
	return nil
}
