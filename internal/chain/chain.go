package chain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bracken/internal/signal"
)

// LegRole distinguishes the two entry brackets.
type LegRole string

const (
	LegA       LegRole = "A" // route-scaled stop, extended target
	LegB       LegRole = "B" // fixed dollar-loss stop, near target
	LegPyramid LegRole = "P" // profit-booking pyramid order
	LegReentry LegRole = "R" // recovery or continuation re-entry
)

// TradeStatus is the lifecycle state of a single order.
type TradeStatus string

const (
	TradePending TradeStatus = "PENDING"
	TradeOpen    TradeStatus = "OPEN"
	TradeClosed  TradeStatus = "CLOSED"
	TradeFailed  TradeStatus = "FAILED"
)

// Trade is one submitted order, keyed by the venue ticket.
type Trade struct {
	Ticket      string
	ChainID     string
	Symbol      string
	Direction   signal.Direction
	Leg         LegRole
	Status      TradeStatus
	Lot         float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	RealizedPnL decimal.Decimal
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// ChainStatus is the lifecycle state of a re-entry chain.
type ChainStatus string

const (
	ChainActive     ChainStatus = "ACTIVE"
	ChainRecovering ChainStatus = "RECOVERING"
	ChainStopped    ChainStatus = "STOPPED"
	ChainCompleted  ChainStatus = "COMPLETED"
)

// Terminal reports whether no monitor may act on the chain anymore.
func (s ChainStatus) Terminal() bool {
	return s == ChainStopped || s == ChainCompleted
}

// ReentryChain groups an original entry with every trade spawned from it by
// recovery and continuation.
type ReentryChain struct {
	ID               string
	Symbol           string
	Direction        signal.Direction
	Route            signal.Route
	Status           ChainStatus
	RecoveryAttempts int
	TPLevel          int // continuation depth after take-profit closes
	LegATicket       string
	LegBTicket       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewReentryChain(sig *signal.Signal, now time.Time) *ReentryChain {
	return &ReentryChain{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Route:     sig.Route,
		Status:    ChainActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProfitChainStatus is the lifecycle state of a profit-booking pyramid.
type ProfitChainStatus string

const (
	ProfitActive    ProfitChainStatus = "ACTIVE"
	ProfitCompleted ProfitChainStatus = "COMPLETED"
	ProfitCancelled ProfitChainStatus = "CANCELLED"
)

// ProfitChain is the pyramid state machine attached to a Leg B fill.
// Level L owns 2^L orders; the level advances only after the whole cohort
// closed, so len(OpenTickets)+PendingOrders equals the cohort size while
// submissions from the last advance are still being retried.
type ProfitChain struct {
	ID            string
	ReentryID     string
	Symbol        string
	Direction     signal.Direction
	Status        ProfitChainStatus
	Level         int
	MaxLevel      int
	BaseLot       float64
	OpenTickets   []string
	PendingOrders int
	BookedProfit  decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewProfitChain(reentryID, symbol string, dir signal.Direction, baseLot float64, maxLevel int, now time.Time) *ProfitChain {
	return &ProfitChain{
		ID:        uuid.NewString(),
		ReentryID: reentryID,
		Symbol:    symbol,
		Direction: dir,
		Status:    ProfitActive,
		Level:     0,
		MaxLevel:  maxLevel,
		BaseLot:   baseLot,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CohortSize is the number of orders level L must run.
func (p *ProfitChain) CohortSize() int { return 1 << p.Level }

// RemoveTicket drops a closed ticket from the open set.
func (p *ProfitChain) RemoveTicket(ticket string) {
	out := p.OpenTickets[:0]
	for _, t := range p.OpenTickets {
		if t != ticket {
			out = append(out, t)
		}
	}
	p.OpenTickets = out
}

// StopOutcome records how a stop-loss watch window ended.
type StopOutcome string

const (
	OutcomePending    StopOutcome = ""
	OutcomeReentered  StopOutcome = "REENTERED"
	OutcomeExpired    StopOutcome = "EXPIRED"
	OutcomeSuperseded StopOutcome = "SUPERSEDED"
)

// StopLossEvent is created when an entry closes at its stop and a recovery
// window opens.
type StopLossEvent struct {
	ID         string
	ChainID    string
	Symbol     string
	Direction  signal.Direction
	EntryPrice float64
	StopPrice  float64
	HitPrice   float64
	HitAt      time.Time
	Deadline   time.Time
	Resolved   bool
	Outcome    StopOutcome
}

func NewStopLossEvent(c *ReentryChain, entry, stop, hit float64, hitAt time.Time, window time.Duration) *StopLossEvent {
	return &StopLossEvent{
		ID:         uuid.NewString(),
		ChainID:    c.ID,
		Symbol:     c.Symbol,
		Direction:  c.Direction,
		EntryPrice: entry,
		StopPrice:  stop,
		HitPrice:   hit,
		HitAt:      hitAt,
		Deadline:   hitAt.Add(window),
		Resolved:   false,
		Outcome:    OutcomePending,
	}
}

// ContinuationKind distinguishes the two continuation watch types.
type ContinuationKind string

const (
	ContinuationTP   ContinuationKind = "tp"
	ContinuationExit ContinuationKind = "exit"
)

// ContinuationRecord is a pending continuation watch after a take-profit or
// forced-exit close.
type ContinuationRecord struct {
	ID           string
	ChainID      string
	Symbol       string
	Direction    signal.Direction
	Kind         ContinuationKind
	TriggerPrice float64 // close price the watch was armed at
	StopDist     float64 // stop distance of the closed trade, pre-reduction
	Level        int     // continuation depth for tp kind
	CreatedAt    time.Time
	Deadline     time.Time
	Resolved     bool
	Reentered    bool
}

func NewContinuationRecord(c *ReentryChain, kind ContinuationKind, price, stopDist float64, level int, now time.Time, window time.Duration) *ContinuationRecord {
	return &ContinuationRecord{
		ID:           uuid.NewString(),
		ChainID:      c.ID,
		Symbol:       c.Symbol,
		Direction:    c.Direction,
		Kind:         kind,
		TriggerPrice: price,
		StopDist:     stopDist,
		Level:        level,
		CreatedAt:    now,
		Deadline:     now.Add(window),
	}
}
