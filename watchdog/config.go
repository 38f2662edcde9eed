package watchdog

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/cachewatch/tier"
)

// Threshold escalates to Tier once an operation has run for After.
type Threshold struct {
	After time.Duration `yaml:"after"`
	Tier  tier.Tier     `yaml:"tier"`
}

// Thresholds is an ascending escalation schedule.
type Thresholds []Threshold

// DefaultThresholds returns tiers 1 to 4 at 15s, 25s, 35s and 45s.
func DefaultThresholds() Thresholds {
	return Thresholds{
		{After: 15 * time.Second, Tier: tier.TierQuery},
		{After: 25 * time.Second, Tier: tier.TierSession},
		{After: 35 * time.Second, Tier: tier.TierStorage},
		{After: 45 * time.Second, Tier: tier.TierReload},
	}
}

// Validate checks that durations are positive and strictly ascending and that
// tiers run 1..n without gaps.
func (t Thresholds) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no thresholds", ErrInvalidThresholds)
	}
	for i, th := range t {
		if th.After <= 0 {
			return fmt.Errorf("%w: threshold %d has non-positive duration %v", ErrInvalidThresholds, i, th.After)
		}
		if want := tier.Tier(i + 1); th.Tier != want {
			return fmt.Errorf("%w: threshold %d is tier %d, want %d", ErrInvalidThresholds, i, th.Tier, want)
		}
		if !th.Tier.Valid() {
			return fmt.Errorf("%w: unknown tier %d", ErrInvalidThresholds, th.Tier)
		}
		if i > 0 && th.After <= t[i-1].After {
			return fmt.Errorf("%w: %v does not follow %v", ErrInvalidThresholds, th.After, t[i-1].After)
		}
	}
	return nil
}

// First returns the first threshold's duration.
func (t Thresholds) First() time.Duration {
	if len(t) == 0 {
		return 0
	}
	return t[0].After
}

// Highest returns the highest tier whose threshold elapsed has reached.
func (t Thresholds) Highest(elapsed time.Duration) tier.Tier {
	highest := tier.TierNone
	for _, th := range t {
		if elapsed < th.After {
			break
		}
		highest = th.Tier
	}
	return highest
}

// after returns the first threshold above tier done.
func (t Thresholds) after(done tier.Tier) (Threshold, bool) {
	for _, th := range t {
		if th.Tier > done {
			return th, true
		}
	}
	return Threshold{}, false
}

// MonitorConfig configures the passive health monitors.
type MonitorConfig struct {
	// Disabled turns RunMonitors into a no-op.
	Disabled bool `yaml:"disabled"`

	// MemoryInterval between memory samples. Default: 30s
	MemoryInterval time.Duration `yaml:"memory_interval"`

	// MemoryHighWater is the usage ratio that trims caches. Default: 0.85
	MemoryHighWater float64 `yaml:"memory_high_water"`

	// MemoryLimit is the heap budget in bytes; 0 uses the runtime limit.
	MemoryLimit uint64 `yaml:"memory_limit"`

	// LongTaskWarn is the stall length that is logged. Default: 50ms
	LongTaskWarn time.Duration `yaml:"long_task_warn"`

	// LongTaskCritical is the stall length that trims caches. Default: 200ms
	LongTaskCritical time.Duration `yaml:"long_task_critical"`

	// StallInterval is the stall detector's sleep interval. Default: 50ms
	StallInterval time.Duration `yaml:"stall_interval"`
}

// Config configures a Controller.
type Config struct {
	// Thresholds is the escalation schedule. Default: DefaultThresholds()
	Thresholds Thresholds `yaml:"thresholds"`

	// TierTimeout bounds a single tier invocation. Default: 10s
	TierTimeout time.Duration `yaml:"tier_timeout"`

	// ReloadCooldown suppresses full reloads for this long after a process
	// starts from a forced reload. Default: 2m
	ReloadCooldown time.Duration `yaml:"reload_cooldown"`

	Monitors MonitorConfig `yaml:"monitors"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if len(c.Thresholds) == 0 {
		c.Thresholds = DefaultThresholds()
	}
	if c.TierTimeout <= 0 {
		c.TierTimeout = 10 * time.Second
	}
	if c.ReloadCooldown <= 0 {
		c.ReloadCooldown = 2 * time.Minute
	}
	m := &c.Monitors
	if m.MemoryInterval <= 0 {
		m.MemoryInterval = 30 * time.Second
	}
	if m.MemoryHighWater <= 0 || m.MemoryHighWater > 1 {
		m.MemoryHighWater = 0.85
	}
	if m.LongTaskWarn <= 0 {
		m.LongTaskWarn = 50 * time.Millisecond
	}
	if m.LongTaskCritical <= 0 {
		m.LongTaskCritical = 200 * time.Millisecond
	}
	if m.StallInterval <= 0 {
		m.StallInterval = 50 * time.Millisecond
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Monitors.LongTaskCritical <= c.Monitors.LongTaskWarn {
		return fmt.Errorf("%w: long_task_critical %v must exceed long_task_warn %v",
			ErrInvalidConfig, c.Monitors.LongTaskCritical, c.Monitors.LongTaskWarn)
	}
	return nil
}

func (c Config) clone() Config {
	c.Thresholds = slices.Clone(c.Thresholds)
	return c
}

// LoadConfig reads a YAML configuration, applies defaults, and validates it.
// Durations are written as Go duration strings ("15s").
//
//	thresholds:
//	  - {after: 10s, tier: 1}
//	  - {after: 20s, tier: 2}
//	tier_timeout: 5s
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
