package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TierLimit is the per-tier request ceiling. DailyLimit 0 means unbounded.
type TierLimit struct {
	HourlyLimit int `mapstructure:"hourlyLimit"`
	DailyLimit  int `mapstructure:"dailyLimit"`
}

// Limits carries all tunable consumption knobs: per-tier rate limits and the
// daily free credit allowance granted to every account.
type Limits struct {
	DailyFreeCredits float64              `mapstructure:"dailyFreeCredits"`
	Tiers            map[string]TierLimit `mapstructure:"tiers"`
}

func DefaultLimits() Limits {
	return Limits{
		DailyFreeCredits: 10,
		Tiers: map[string]TierLimit{
			"anonymous":       {HourlyLimit: 10, DailyLimit: 50},
			"registered_free": {HourlyLimit: 30, DailyLimit: 200},
			"paid":            {HourlyLimit: 120, DailyLimit: 0},
		},
	}
}

// TierFor resolves a tier name to its limits, falling back to the anonymous
// tier for unknown names so an unclassified identity never gets a wider limit.
func (l Limits) TierFor(tier string) TierLimit {
	if t, ok := l.Tiers[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return t
	}
	return l.Tiers["anonymous"]
}

// LimitsHolder serves the current Limits snapshot and hot-reloads it when the
// config file changes.
type LimitsHolder struct {
	current atomic.Value // holds Limits
}

func NewLimitsHolder() (*LimitsHolder, error) {
	v := viper.New()

	v.SetConfigName("limits")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/creditrail")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREDITRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLimits()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("limits.dailyFreeCredits", defaults.DailyFreeCredits)
		v.SetDefault("limits.tiers", defaults.Tiers)
	}

	cfg := defaults
	if err := v.UnmarshalKey("limits", &cfg); err != nil {
		return nil, err
	}
	if err := validateLimits(cfg); err != nil {
		return nil, err
	}

	holder := &LimitsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultLimits()
		if err := v.UnmarshalKey("limits", &updated); err != nil {
			log.Printf("[limits-config] reload failed: %v", err)
			return
		}
		if err := validateLimits(updated); err != nil {
			log.Printf("[limits-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[limits-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticLimits builds a holder around a fixed snapshot. Used by tests and
// anywhere hot reload is not wanted.
func NewStaticLimits(l Limits) *LimitsHolder {
	holder := &LimitsHolder{}
	holder.current.Store(l)
	return holder
}

func (h *LimitsHolder) Get() Limits {
	return h.current.Load().(Limits)
}

func validateLimits(cfg Limits) error {
	if cfg.DailyFreeCredits < 0 {
		return errors.New("limits.dailyFreeCredits cannot be negative")
	}
	if len(cfg.Tiers) == 0 {
		return errors.New("limits.tiers cannot be empty")
	}
	if _, ok := cfg.Tiers["anonymous"]; !ok {
		return errors.New("limits.tiers must define the anonymous tier")
	}
	for name, tier := range cfg.Tiers {
		if tier.HourlyLimit <= 0 {
			return errors.New("limits.tiers." + name + ".hourlyLimit must be positive")
		}
		if tier.DailyLimit < 0 {
			return errors.New("limits.tiers." + name + ".dailyLimit cannot be negative")
		}
	}
	return nil
}
