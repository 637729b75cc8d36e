package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Routes.validate(); err != nil {
		return err
	}
	if err := c.Entry.validate(); err != nil {
		return err
	}
	if err := c.Pyramid.validate(); err != nil {
		return err
	}
	if err := c.Recovery.validate(); err != nil {
		return err
	}
	if err := c.Continuation.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	if a.PaperBalanceUSD <= 0 {
		return fmt.Errorf("app.paper_balance_usd must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.DailyLossPct <= 0 || r.DailyLossPct > 100 {
		return fmt.Errorf("risk.daily_loss_pct must be in (0,100]")
	}
	if r.LifetimeLossUSD <= 0 {
		return fmt.Errorf("risk.lifetime_loss_usd must be > 0")
	}
	return nil
}

func (r *RoutesConfig) validate() error {
	for _, rc := range []struct {
		name string
		cfg  RouteConfig
	}{
		{"routes.scalp", r.Scalp},
		{"routes.intraday", r.Intraday},
		{"routes.swing", r.Swing},
	} {
		if rc.cfg.StopMultiplier <= 0 {
			return fmt.Errorf("%s.stop_multiplier must be > 0", rc.name)
		}
		if rc.cfg.LotMultiplier <= 0 {
			return fmt.Errorf("%s.lot_multiplier must be > 0", rc.name)
		}
	}
	return nil
}

func (e *EntryConfig) validate() error {
	if e.LegBLotFactor <= 0 {
		return fmt.Errorf("entry.leg_b_lot_factor must be > 0")
	}
	if e.LegBMaxLossUSD <= 0 {
		return fmt.Errorf("entry.leg_b_max_loss_usd must be > 0")
	}
	if e.MinLot <= 0 {
		return fmt.Errorf("entry.min_lot must be > 0")
	}
	return nil
}

func (p *PyramidConfig) validate() error {
	if p.MaxLevel < 1 || p.MaxLevel > 8 {
		return fmt.Errorf("pyramid.max_level must be in [1,8]")
	}
	if p.PerOrderTargetUSD <= 0 {
		return fmt.Errorf("pyramid.per_order_target_usd must be > 0")
	}
	if p.OrderMaxLossUSD <= 0 {
		return fmt.Errorf("pyramid.order_max_loss_usd must be > 0")
	}
	return nil
}

func (r *RecoveryConfig) validate() error {
	if r.WindowMinutes <= 0 {
		return fmt.Errorf("recovery.window_minutes must be > 0")
	}
	if r.TriggerFraction <= 0 || r.TriggerFraction > 1 {
		return fmt.Errorf("recovery.trigger_fraction must be in (0,1]")
	}
	if r.StopReductionPct < 0 || r.StopReductionPct >= 100 {
		return fmt.Errorf("recovery.stop_reduction_pct must be in [0,100)")
	}
	if r.RewardRiskRatio <= 0 {
		return fmt.Errorf("recovery.reward_risk_ratio must be > 0")
	}
	if r.MaxAttemptsPerChain <= 0 || r.MaxAttemptsPerDay <= 0 {
		return fmt.Errorf("recovery attempt limits must be > 0")
	}
	return nil
}

func (c *ContinuationConfig) validate() error {
	if c.TP.WindowMinutes <= 0 {
		return fmt.Errorf("continuation.tp.window_minutes must be > 0")
	}
	if c.TP.MaxLevel < 1 {
		return fmt.Errorf("continuation.tp.max_level must be >= 1")
	}
	for i, pct := range c.TP.StopReductionPcts {
		if pct < 0 || pct >= 100 {
			return fmt.Errorf("continuation.tp.stop_reduction_pcts[%d] must be in [0,100)", i)
		}
	}
	if c.TP.RewardRiskRatio <= 0 {
		return fmt.Errorf("continuation.tp.reward_risk_ratio must be > 0")
	}
	if c.Exit.WindowMinutes <= 0 {
		return fmt.Errorf("continuation.exit.window_minutes must be > 0")
	}
	if c.Exit.MinGapPips <= 0 {
		return fmt.Errorf("continuation.exit.min_gap_pips must be > 0")
	}
	if c.Exit.StopReductionPct < 0 || c.Exit.StopReductionPct >= 100 {
		return fmt.Errorf("continuation.exit.stop_reduction_pct must be in [0,100)")
	}
	if c.Exit.RewardRiskRatio <= 0 {
		return fmt.Errorf("continuation.exit.reward_risk_ratio must be > 0")
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if s.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be > 0")
	}
	if s.MaxConcurrentChains <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_chains must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}
