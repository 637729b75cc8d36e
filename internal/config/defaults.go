package config

import "strings"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = "data/logs/bracken.log"
	defaultPaperBalanceUSD = 10_000

	defaultRiskDailyLossPct    = 3.0
	defaultRiskLifetimeLossUSD = 500

	defaultScalpStopMult    = 1.0
	defaultScalpLotMult     = 1.25
	defaultIntradayStopMult = 1.5
	defaultIntradayLotMult  = 1.0
	defaultSwingStopMult    = 2.0
	defaultSwingLotMult     = 0.625

	defaultLegBLotFactor  = 2.0
	defaultLegBMaxLossUSD = 10
	defaultMinLot         = 0.01

	defaultPyramidMaxLevel   = 4
	defaultPyramidTargetUSD  = 10
	defaultPyramidMaxLossUSD = 10

	defaultRecoveryWindowMinutes  = 60
	defaultRecoveryFraction       = 0.70
	defaultRecoveryStopReduction  = 50
	defaultRecoveryRewardRisk     = 2.0
	defaultRecoveryChainAttempts  = 2
	defaultRecoveryDailyAttempts  = 4
	defaultContinuationWindowMins = 30
	defaultTPContMaxLevel         = 3
	defaultExitContMinGapPips     = 15
	defaultExitContStopReduction  = 50
	defaultContRewardRisk         = 2.0

	defaultSchedulerTickSeconds = 30
	defaultSchedulerMaxChains   = 8

	defaultStorePath = "data/bracken.db"
)

func defaultTPContReductions() []float64 { return []float64{40, 55, 70} }

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Routes.applyDefaults(keys)
	c.Entry.applyDefaults(keys)
	c.Pyramid.applyDefaults(keys)
	c.Recovery.applyDefaults(keys)
	c.Continuation.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
	c.Trend.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		fieldDefault{
			key:   "app.paper_balance_usd",
			need:  func() bool { return a.PaperBalanceUSD <= 0 },
			apply: func() { a.PaperBalanceUSD = defaultPaperBalanceUSD },
		},
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.daily_loss_pct",
			need:  func() bool { return r.DailyLossPct <= 0 },
			apply: func() { r.DailyLossPct = defaultRiskDailyLossPct },
		},
		fieldDefault{
			key:   "risk.lifetime_loss_usd",
			need:  func() bool { return r.LifetimeLossUSD <= 0 },
			apply: func() { r.LifetimeLossUSD = defaultRiskLifetimeLossUSD },
		},
	)
}

func (r *RoutesConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	r.Scalp.applyDefaults(keys, "routes.scalp", defaultScalpStopMult, defaultScalpLotMult)
	r.Intraday.applyDefaults(keys, "routes.intraday", defaultIntradayStopMult, defaultIntradayLotMult)
	r.Swing.applyDefaults(keys, "routes.swing", defaultSwingStopMult, defaultSwingLotMult)
}

func (r *RouteConfig) applyDefaults(keys keySet, prefix string, stopMult, lotMult float64) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   prefix + ".stop_multiplier",
			need:  func() bool { return r.StopMultiplier <= 0 },
			apply: func() { r.StopMultiplier = stopMult },
		},
		fieldDefault{
			key:   prefix + ".lot_multiplier",
			need:  func() bool { return r.LotMultiplier <= 0 },
			apply: func() { r.LotMultiplier = lotMult },
		},
	)
}

func (e *EntryConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "entry.leg_b_lot_factor",
			need:  func() bool { return e.LegBLotFactor <= 0 },
			apply: func() { e.LegBLotFactor = defaultLegBLotFactor },
		},
		fieldDefault{
			key:   "entry.leg_b_max_loss_usd",
			need:  func() bool { return e.LegBMaxLossUSD <= 0 },
			apply: func() { e.LegBMaxLossUSD = defaultLegBMaxLossUSD },
		},
		fieldDefault{
			key:   "entry.min_lot",
			need:  func() bool { return e.MinLot <= 0 },
			apply: func() { e.MinLot = defaultMinLot },
		},
	)
}

func (p *PyramidConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("pyramid.enabled", &p.Enabled, true),
		fieldDefault{
			key:   "pyramid.max_level",
			need:  func() bool { return p.MaxLevel <= 0 },
			apply: func() { p.MaxLevel = defaultPyramidMaxLevel },
		},
		fieldDefault{
			key:   "pyramid.per_order_target_usd",
			need:  func() bool { return p.PerOrderTargetUSD <= 0 },
			apply: func() { p.PerOrderTargetUSD = defaultPyramidTargetUSD },
		},
		fieldDefault{
			key:   "pyramid.order_max_loss_usd",
			need:  func() bool { return p.OrderMaxLossUSD <= 0 },
			apply: func() { p.OrderMaxLossUSD = defaultPyramidMaxLossUSD },
		},
	)
}

func (r *RecoveryConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("recovery.enabled", &r.Enabled, true),
		fieldDefault{
			key:   "recovery.window_minutes",
			need:  func() bool { return r.WindowMinutes <= 0 },
			apply: func() { r.WindowMinutes = defaultRecoveryWindowMinutes },
		},
		fieldDefault{
			key:   "recovery.trigger_fraction",
			need:  func() bool { return r.TriggerFraction <= 0 },
			apply: func() { r.TriggerFraction = defaultRecoveryFraction },
		},
		fieldDefault{
			key:   "recovery.stop_reduction_pct",
			need:  func() bool { return r.StopReductionPct <= 0 },
			apply: func() { r.StopReductionPct = defaultRecoveryStopReduction },
		},
		fieldDefault{
			key:   "recovery.reward_risk_ratio",
			need:  func() bool { return r.RewardRiskRatio <= 0 },
			apply: func() { r.RewardRiskRatio = defaultRecoveryRewardRisk },
		},
		fieldDefault{
			key:   "recovery.max_attempts_per_chain",
			need:  func() bool { return r.MaxAttemptsPerChain <= 0 },
			apply: func() { r.MaxAttemptsPerChain = defaultRecoveryChainAttempts },
		},
		fieldDefault{
			key:   "recovery.max_attempts_per_day",
			need:  func() bool { return r.MaxAttemptsPerDay <= 0 },
			apply: func() { r.MaxAttemptsPerDay = defaultRecoveryDailyAttempts },
		},
	)
}

func (c *ContinuationConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("continuation.tp.enabled", &c.TP.Enabled, true),
		fieldDefault{
			key:   "continuation.tp.window_minutes",
			need:  func() bool { return c.TP.WindowMinutes <= 0 },
			apply: func() { c.TP.WindowMinutes = defaultContinuationWindowMins },
		},
		fieldDefault{
			key:   "continuation.tp.max_level",
			need:  func() bool { return c.TP.MaxLevel <= 0 },
			apply: func() { c.TP.MaxLevel = defaultTPContMaxLevel },
		},
		fieldDefault{
			key:   "continuation.tp.stop_reduction_pcts",
			need:  func() bool { return len(c.TP.StopReductionPcts) == 0 },
			apply: func() { c.TP.StopReductionPcts = defaultTPContReductions() },
		},
		fieldDefault{
			key:   "continuation.tp.reward_risk_ratio",
			need:  func() bool { return c.TP.RewardRiskRatio <= 0 },
			apply: func() { c.TP.RewardRiskRatio = defaultContRewardRisk },
		},
		boolFieldDefault("continuation.exit.enabled", &c.Exit.Enabled, true),
		fieldDefault{
			key:   "continuation.exit.window_minutes",
			need:  func() bool { return c.Exit.WindowMinutes <= 0 },
			apply: func() { c.Exit.WindowMinutes = defaultContinuationWindowMins },
		},
		fieldDefault{
			key:   "continuation.exit.min_gap_pips",
			need:  func() bool { return c.Exit.MinGapPips <= 0 },
			apply: func() { c.Exit.MinGapPips = defaultExitContMinGapPips },
		},
		fieldDefault{
			key:   "continuation.exit.stop_reduction_pct",
			need:  func() bool { return c.Exit.StopReductionPct <= 0 },
			apply: func() { c.Exit.StopReductionPct = defaultExitContStopReduction },
		},
		fieldDefault{
			key:   "continuation.exit.reward_risk_ratio",
			need:  func() bool { return c.Exit.RewardRiskRatio <= 0 },
			apply: func() { c.Exit.RewardRiskRatio = defaultContRewardRisk },
		},
	)
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "scheduler.tick_seconds",
			need:  func() bool { return s.TickSeconds <= 0 },
			apply: func() { s.TickSeconds = defaultSchedulerTickSeconds },
		},
		fieldDefault{
			key:   "scheduler.max_concurrent_chains",
			need:  func() bool { return s.MaxConcurrentChains <= 0 },
			apply: func() { s.MaxConcurrentChains = defaultSchedulerMaxChains },
		},
	)
}

func (t *TrendConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("trend.enabled", &t.Enabled, true),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
