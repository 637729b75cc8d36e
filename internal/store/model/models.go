package model

import "gorm.io/datatypes"

type TradeModel struct {
	Ticket        string  `gorm:"column:ticket;primaryKey"`
	ChainID       string  `gorm:"column:chain_id;index"`
	Symbol        string  `gorm:"column:symbol"`
	Direction     string  `gorm:"column:direction"`
	Leg           string  `gorm:"column:leg"`
	Status        string  `gorm:"column:status;index"`
	Lot           float64 `gorm:"column:lot"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	StopPrice     float64 `gorm:"column:stop_price"`
	TargetPrice   float64 `gorm:"column:target_price"`
	RealizedPnL   string  `gorm:"column:realized_pnl"`
	OpenedAtUnix  int64   `gorm:"column:opened_at"`
	ClosedAtUnix  int64   `gorm:"column:closed_at"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (TradeModel) TableName() string { return "trades" }

type ReentryChainModel struct {
	ID               string `gorm:"column:id;primaryKey"`
	Symbol           string `gorm:"column:symbol;index"`
	Direction        string `gorm:"column:direction"`
	Route            string `gorm:"column:route"`
	Status           string `gorm:"column:status;index"`
	RecoveryAttempts int    `gorm:"column:recovery_attempts"`
	TPLevel          int    `gorm:"column:tp_level"`
	LegATicket       string `gorm:"column:leg_a_ticket"`
	LegBTicket       string `gorm:"column:leg_b_ticket"`
	CreatedAtUnix    int64  `gorm:"column:created_at"`
	UpdatedAtUnix    int64  `gorm:"column:updated_at"`
}

func (ReentryChainModel) TableName() string { return "reentry_chains" }

type ProfitChainModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	ReentryID     string         `gorm:"column:reentry_id;index"`
	Symbol        string         `gorm:"column:symbol"`
	Direction     string         `gorm:"column:direction"`
	Status        string         `gorm:"column:status;index"`
	Level         int            `gorm:"column:level"`
	MaxLevel      int            `gorm:"column:max_level"`
	BaseLot       float64        `gorm:"column:base_lot"`
	OpenTickets   datatypes.JSON `gorm:"column:open_tickets;type:TEXT"`
	PendingOrders int            `gorm:"column:pending_orders"`
	BookedProfit  string         `gorm:"column:booked_profit"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (ProfitChainModel) TableName() string { return "profit_chains" }

type StopLossEventModel struct {
	ID           string  `gorm:"column:id;primaryKey"`
	ChainID      string  `gorm:"column:chain_id;index"`
	Symbol       string  `gorm:"column:symbol"`
	Direction    string  `gorm:"column:direction"`
	EntryPrice   float64 `gorm:"column:entry_price"`
	StopPrice    float64 `gorm:"column:stop_price"`
	HitPrice     float64 `gorm:"column:hit_price"`
	HitAtUnix    int64   `gorm:"column:hit_at"`
	DeadlineUnix int64   `gorm:"column:deadline"`
	Resolved     bool    `gorm:"column:resolved;index"`
	Outcome      string  `gorm:"column:outcome"`
}

func (StopLossEventModel) TableName() string { return "stop_loss_events" }

type ContinuationModel struct {
	ID            string  `gorm:"column:id;primaryKey"`
	ChainID       string  `gorm:"column:chain_id;index"`
	Symbol        string  `gorm:"column:symbol"`
	Direction     string  `gorm:"column:direction"`
	Kind          string  `gorm:"column:kind"`
	TriggerPrice  float64 `gorm:"column:trigger_price"`
	StopDist      float64 `gorm:"column:stop_dist"`
	Level         int     `gorm:"column:level"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
	DeadlineUnix  int64   `gorm:"column:deadline"`
	Resolved      bool    `gorm:"column:resolved;index"`
	Reentered     bool    `gorm:"column:reentered"`
}

func (ContinuationModel) TableName() string { return "continuation_records" }

// RiskStateModel is a single-row table (id always 1).
type RiskStateModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Day           string `gorm:"column:day"`
	DailyLoss     string `gorm:"column:daily_loss"`
	DailyProfit   string `gorm:"column:daily_profit"`
	LifetimeLoss  string `gorm:"column:lifetime_loss"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (RiskStateModel) TableName() string { return "risk_state" }
