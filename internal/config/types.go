package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration for bracken.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Risk         RiskConfig         `yaml:"risk"`
	Routes       RoutesConfig       `yaml:"routes"`
	Entry        EntryConfig        `yaml:"entry"`
	Pyramid      PyramidConfig      `yaml:"pyramid"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Continuation ContinuationConfig `yaml:"continuation"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Trend        TrendConfig        `yaml:"trend"`
	Notify       NotifyConfig       `yaml:"notify"`
	Store        StoreConfig        `yaml:"store"`
}

type AppConfig struct {
	Env             string  `yaml:"env"`
	LogLevel        string  `yaml:"log_level"`
	LogPath         string  `yaml:"log_path"`
	PaperBalanceUSD float64 `yaml:"paper_balance_usd"` // starting balance of the dry-run venue
}

// RiskConfig bounds cumulative losses before new entries are refused.
type RiskConfig struct {
	DailyLossPct    float64 `yaml:"daily_loss_pct"`    // pct of balance lost per day before entries stop
	LifetimeLossUSD float64 `yaml:"lifetime_loss_usd"` // absolute drawdown cap across the account lifetime
}

// RouteConfig carries the per-route sizing knobs.
type RouteConfig struct {
	StopMultiplier float64 `yaml:"stop_multiplier"`
	LotMultiplier  float64 `yaml:"lot_multiplier"`
}

type RoutesConfig struct {
	Scalp    RouteConfig `yaml:"scalp"`
	Intraday RouteConfig `yaml:"intraday"`
	Swing    RouteConfig `yaml:"swing"`
}

type EntryConfig struct {
	LegBLotFactor  float64 `yaml:"leg_b_lot_factor"`   // Leg B lot = factor x Leg A lot
	LegBMaxLossUSD float64 `yaml:"leg_b_max_loss_usd"` // fixed dollar loss the Leg B stop may realize
	MinLot         float64 `yaml:"min_lot"`
}

type PyramidConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxLevel          int     `yaml:"max_level"`
	PerOrderTargetUSD float64 `yaml:"per_order_target_usd"`
	OrderMaxLossUSD   float64 `yaml:"order_max_loss_usd"`
}

type RecoveryConfig struct {
	Enabled             bool    `yaml:"enabled"`
	WindowMinutes       int     `yaml:"window_minutes"`
	TriggerFraction     float64 `yaml:"trigger_fraction"`
	StopReductionPct    float64 `yaml:"stop_reduction_pct"`
	RewardRiskRatio     float64 `yaml:"reward_risk_ratio"`
	MaxAttemptsPerChain int     `yaml:"max_attempts_per_chain"`
	MaxAttemptsPerDay   int     `yaml:"max_attempts_per_day"`
}

func (r RecoveryConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

type ContinuationConfig struct {
	TP   TPContinuationConfig   `yaml:"tp"`
	Exit ExitContinuationConfig `yaml:"exit"`
}

type TPContinuationConfig struct {
	Enabled           bool      `yaml:"enabled"`
	WindowMinutes     int       `yaml:"window_minutes"`
	MaxLevel          int       `yaml:"max_level"`
	StopReductionPcts []float64 `yaml:"stop_reduction_pcts"` // indexed by continuation level, 1-based
	RewardRiskRatio   float64   `yaml:"reward_risk_ratio"`
}

func (t TPContinuationConfig) Window() time.Duration {
	return time.Duration(t.WindowMinutes) * time.Minute
}

// ReductionFor returns the stop-distance reduction pct for a continuation level.
func (t TPContinuationConfig) ReductionFor(level int) float64 {
	if level < 1 {
		level = 1
	}
	if len(t.StopReductionPcts) == 0 {
		return 0
	}
	if level > len(t.StopReductionPcts) {
		level = len(t.StopReductionPcts)
	}
	return t.StopReductionPcts[level-1]
}

type ExitContinuationConfig struct {
	Enabled          bool    `yaml:"enabled"`
	WindowMinutes    int     `yaml:"window_minutes"`
	MinGapPips       float64 `yaml:"min_gap_pips"`
	StopReductionPct float64 `yaml:"stop_reduction_pct"`
	RewardRiskRatio  float64 `yaml:"reward_risk_ratio"`
}

func (e ExitContinuationConfig) Window() time.Duration {
	return time.Duration(e.WindowMinutes) * time.Minute
}

type SchedulerConfig struct {
	TickSeconds         int `yaml:"tick_seconds"`
	MaxConcurrentChains int `yaml:"max_concurrent_chains"`
}

func (s SchedulerConfig) Tick() time.Duration {
	return time.Duration(s.TickSeconds) * time.Second
}

type TrendConfig struct {
	Enabled bool `yaml:"enabled"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// keySet tracks which config paths were explicitly set in the files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
