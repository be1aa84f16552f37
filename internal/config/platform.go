package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlatformConfig carries the billing knobs that operators tune without
// redeploying: the fee the broker keeps on each charge when it acts as its
// own processor, the default currency unit, and coupon expiry.
type PlatformConfig struct {
	// ProcessorFeeBps overrides the payment backend's own fee rule when > 0.
	// Basis points of the charged amount, floor-rounded.
	ProcessorFeeBps int64 `mapstructure:"processorFeeBps"`

	DefaultUnit string `mapstructure:"defaultUnit"`

	// CouponDays is the default validity window for generated coupons.
	CouponDays int `mapstructure:"couponDays"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		ProcessorFeeBps: 0,
		DefaultUnit:     "usd",
		CouponDays:      30,
	}
}

// PlatformConfigHolder exposes the current PlatformConfig and hot-reloads it
// when the backing file changes.
type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

func NewPlatformConfigHolder() (*PlatformConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/subledger/config")
	v.AddConfigPath("/etc/subledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUBLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformConfig()
	v.SetDefault("platform.processorFeeBps", defaults.ProcessorFeeBps)
	v.SetDefault("platform.defaultUnit", defaults.DefaultUnit)
	v.SetDefault("platform.couponDays", defaults.CouponDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PlatformConfig
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlatformConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlatformConfig
		if err := v.UnmarshalKey("platform", &updated); err != nil {
			log.Printf("[platform-config] reload failed: %v", err)
			return
		}
		if err := validatePlatformConfig(updated); err != nil {
			log.Printf("[platform-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[platform-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlatformConfigHolder wraps a fixed config, for tests and tools
// that do not watch a file.
func NewStaticPlatformConfigHolder(cfg PlatformConfig) *PlatformConfigHolder {
	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlatformConfigHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

func validatePlatformConfig(cfg PlatformConfig) error {
	if cfg.ProcessorFeeBps < 0 || cfg.ProcessorFeeBps > 10000 {
		return errors.New("platform.processorFeeBps must be within [0, 10000]")
	}
	if strings.TrimSpace(cfg.DefaultUnit) == "" {
		return errors.New("platform.defaultUnit cannot be empty")
	}
	if cfg.CouponDays <= 0 {
		return errors.New("platform.couponDays must be positive")
	}
	return nil
}
