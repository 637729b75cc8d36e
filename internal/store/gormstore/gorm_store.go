// Package gormstore persists engine state with Gorm + SQLite.
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shopspring/decimal"

	"bracken/internal/chain"
	"bracken/internal/risk"
	"bracken/internal/signal"
	storemodel "bracken/internal/store/model"
)

const riskStateRowID = 1

type GormStore struct {
	db *gorm.DB
}

func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.TradeModel{},
		&storemodel.ReentryChainModel{},
		&storemodel.ProfitChainModel{},
		&storemodel.StopLossEventModel{},
		&storemodel.ContinuationModel{},
		&storemodel.RiskStateModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep lock contention low while the scheduler fans out.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// --------------------- trades -------------------------

func (s *GormStore) SaveTrade(ctx context.Context, t *chain.Trade) error {
	if t == nil {
		return nil
	}
	m := tradeToModel(t)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticket"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) GetTrade(ctx context.Context, ticket string) (*chain.Trade, error) {
	var m storemodel.TradeModel
	err := s.db.WithContext(ctx).Where("ticket = ?", ticket).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trade %s not found", ticket)
	}
	if err != nil {
		return nil, err
	}
	return tradeFromModel(m)
}

func (s *GormStore) ListChainTrades(ctx context.Context, chainID string) ([]*chain.Trade, error) {
	var models []storemodel.TradeModel
	if err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).Order("opened_at").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*chain.Trade, 0, len(models))
	for _, m := range models {
		t, err := tradeFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// --------------------- reentry chains -------------------------

func (s *GormStore) SaveReentryChain(ctx context.Context, c *chain.ReentryChain) error {
	if c == nil {
		return nil
	}
	m := reentryToModel(c)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) ListActiveReentryChains(ctx context.Context) ([]*chain.ReentryChain, error) {
	var models []storemodel.ReentryChainModel
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(chain.ChainActive), string(chain.ChainRecovering)}).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*chain.ReentryChain, 0, len(models))
	for _, m := range models {
		out = append(out, reentryFromModel(m))
	}
	return out, nil
}

// --------------------- profit chains -------------------------

func (s *GormStore) SaveProfitChain(ctx context.Context, p *chain.ProfitChain) error {
	if p == nil {
		return nil
	}
	m, err := profitToModel(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) ListActiveProfitChains(ctx context.Context) ([]*chain.ProfitChain, error) {
	var models []storemodel.ProfitChainModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(chain.ProfitActive)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*chain.ProfitChain, 0, len(models))
	for _, m := range models {
		p, err := profitFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// --------------------- stop loss events -------------------------

func (s *GormStore) SaveStopLossEvent(ctx context.Context, e *chain.StopLossEvent) error {
	if e == nil {
		return nil
	}
	m := stopEventToModel(e)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) ListUnresolvedStopLossEvents(ctx context.Context) ([]*chain.StopLossEvent, error) {
	var models []storemodel.StopLossEventModel
	if err := s.db.WithContext(ctx).Where("resolved = ?", false).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*chain.StopLossEvent, 0, len(models))
	for _, m := range models {
		out = append(out, stopEventFromModel(m))
	}
	return out, nil
}

func (s *GormStore) CountReenteredStopLossEvents(ctx context.Context, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&storemodel.StopLossEventModel{}).
		Where("outcome = ? AND hit_at >= ?", string(chain.OutcomeReentered), since.Unix()).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// --------------------- continuation records -------------------------

func (s *GormStore) SaveContinuation(ctx context.Context, r *chain.ContinuationRecord) error {
	if r == nil {
		return nil
	}
	m := continuationToModel(r)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) ListUnresolvedContinuations(ctx context.Context) ([]*chain.ContinuationRecord, error) {
	var models []storemodel.ContinuationModel
	if err := s.db.WithContext(ctx).Where("resolved = ?", false).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*chain.ContinuationRecord, 0, len(models))
	for _, m := range models {
		out = append(out, continuationFromModel(m))
	}
	return out, nil
}

// --------------------- risk state -------------------------

func (s *GormStore) LoadRiskState() (risk.State, bool, error) {
	var m storemodel.RiskStateModel
	err := s.db.Where("id = ?", riskStateRowID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.State{}, false, nil
	}
	if err != nil {
		return risk.State{}, false, err
	}
	st := risk.State{Day: m.Day}
	if st.DailyLoss, err = parseDecimal(m.DailyLoss); err != nil {
		return risk.State{}, false, err
	}
	if st.DailyProfit, err = parseDecimal(m.DailyProfit); err != nil {
		return risk.State{}, false, err
	}
	if st.LifetimeLoss, err = parseDecimal(m.LifetimeLoss); err != nil {
		return risk.State{}, false, err
	}
	return st, true, nil
}

func (s *GormStore) SaveRiskState(st risk.State) error {
	m := storemodel.RiskStateModel{
		ID:            riskStateRowID,
		Day:           st.Day,
		DailyLoss:     st.DailyLoss.String(),
		DailyProfit:   st.DailyProfit.String(),
		LifetimeLoss:  st.LifetimeLoss.String(),
		UpdatedAtUnix: time.Now().Unix(),
	}
	return s.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// --------------------- converters -------------------------

func tradeToModel(t *chain.Trade) storemodel.TradeModel {
	return storemodel.TradeModel{
		Ticket:        t.Ticket,
		ChainID:       t.ChainID,
		Symbol:        t.Symbol,
		Direction:     string(t.Direction),
		Leg:           string(t.Leg),
		Status:        string(t.Status),
		Lot:           t.Lot,
		EntryPrice:    t.EntryPrice,
		StopPrice:     t.StopPrice,
		TargetPrice:   t.TargetPrice,
		RealizedPnL:   t.RealizedPnL.String(),
		OpenedAtUnix:  unixOrZero(t.OpenedAt),
		ClosedAtUnix:  unixOrZero(t.ClosedAt),
		UpdatedAtUnix: time.Now().Unix(),
	}
}

func tradeFromModel(m storemodel.TradeModel) (*chain.Trade, error) {
	pnl, err := parseDecimal(m.RealizedPnL)
	if err != nil {
		return nil, fmt.Errorf("trade %s realized_pnl: %w", m.Ticket, err)
	}
	return &chain.Trade{
		Ticket:      m.Ticket,
		ChainID:     m.ChainID,
		Symbol:      m.Symbol,
		Direction:   signal.Direction(m.Direction),
		Leg:         chain.LegRole(m.Leg),
		Status:      chain.TradeStatus(m.Status),
		Lot:         m.Lot,
		EntryPrice:  m.EntryPrice,
		StopPrice:   m.StopPrice,
		TargetPrice: m.TargetPrice,
		RealizedPnL: pnl,
		OpenedAt:    timeOrZero(m.OpenedAtUnix),
		ClosedAt:    timeOrZero(m.ClosedAtUnix),
	}, nil
}

func reentryToModel(c *chain.ReentryChain) storemodel.ReentryChainModel {
	return storemodel.ReentryChainModel{
		ID:               c.ID,
		Symbol:           c.Symbol,
		Direction:        string(c.Direction),
		Route:            string(c.Route),
		Status:           string(c.Status),
		RecoveryAttempts: c.RecoveryAttempts,
		TPLevel:          c.TPLevel,
		LegATicket:       c.LegATicket,
		LegBTicket:       c.LegBTicket,
		CreatedAtUnix:    unixOrZero(c.CreatedAt),
		UpdatedAtUnix:    time.Now().Unix(),
	}
}

func reentryFromModel(m storemodel.ReentryChainModel) *chain.ReentryChain {
	return &chain.ReentryChain{
		ID:               m.ID,
		Symbol:           m.Symbol,
		Direction:        signal.Direction(m.Direction),
		Route:            signal.Route(m.Route),
		Status:           chain.ChainStatus(m.Status),
		RecoveryAttempts: m.RecoveryAttempts,
		TPLevel:          m.TPLevel,
		LegATicket:       m.LegATicket,
		LegBTicket:       m.LegBTicket,
		CreatedAt:        timeOrZero(m.CreatedAtUnix),
		UpdatedAt:        timeOrZero(m.UpdatedAtUnix),
	}
}

func profitToModel(p *chain.ProfitChain) (storemodel.ProfitChainModel, error) {
	tickets, err := json.Marshal(p.OpenTickets)
	if err != nil {
		return storemodel.ProfitChainModel{}, fmt.Errorf("profit chain %s tickets: %w", p.ID, err)
	}
	return storemodel.ProfitChainModel{
		ID:            p.ID,
		ReentryID:     p.ReentryID,
		Symbol:        p.Symbol,
		Direction:     string(p.Direction),
		Status:        string(p.Status),
		Level:         p.Level,
		MaxLevel:      p.MaxLevel,
		BaseLot:       p.BaseLot,
		OpenTickets:   datatypes.JSON(tickets),
		PendingOrders: p.PendingOrders,
		BookedProfit:  p.BookedProfit.String(),
		CreatedAtUnix: unixOrZero(p.CreatedAt),
		UpdatedAtUnix: time.Now().Unix(),
	}, nil
}

func profitFromModel(m storemodel.ProfitChainModel) (*chain.ProfitChain, error) {
	var tickets []string
	if len(m.OpenTickets) > 0 {
		if err := json.Unmarshal(m.OpenTickets, &tickets); err != nil {
			return nil, fmt.Errorf("profit chain %s tickets: %w", m.ID, err)
		}
	}
	booked, err := parseDecimal(m.BookedProfit)
	if err != nil {
		return nil, fmt.Errorf("profit chain %s booked_profit: %w", m.ID, err)
	}
	return &chain.ProfitChain{
		ID:            m.ID,
		ReentryID:     m.ReentryID,
		Symbol:        m.Symbol,
		Direction:     signal.Direction(m.Direction),
		Status:        chain.ProfitChainStatus(m.Status),
		Level:         m.Level,
		MaxLevel:      m.MaxLevel,
		BaseLot:       m.BaseLot,
		OpenTickets:   tickets,
		PendingOrders: m.PendingOrders,
		BookedProfit:  booked,
		CreatedAt:     timeOrZero(m.CreatedAtUnix),
		UpdatedAt:     timeOrZero(m.UpdatedAtUnix),
	}, nil
}

func stopEventToModel(e *chain.StopLossEvent) storemodel.StopLossEventModel {
	return storemodel.StopLossEventModel{
		ID:           e.ID,
		ChainID:      e.ChainID,
		Symbol:       e.Symbol,
		Direction:    string(e.Direction),
		EntryPrice:   e.EntryPrice,
		StopPrice:    e.StopPrice,
		HitPrice:     e.HitPrice,
		HitAtUnix:    unixOrZero(e.HitAt),
		DeadlineUnix: unixOrZero(e.Deadline),
		Resolved:     e.Resolved,
		Outcome:      string(e.Outcome),
	}
}

func stopEventFromModel(m storemodel.StopLossEventModel) *chain.StopLossEvent {
	return &chain.StopLossEvent{
		ID:         m.ID,
		ChainID:    m.ChainID,
		Symbol:     m.Symbol,
		Direction:  signal.Direction(m.Direction),
		EntryPrice: m.EntryPrice,
		StopPrice:  m.StopPrice,
		HitPrice:   m.HitPrice,
		HitAt:      timeOrZero(m.HitAtUnix),
		Deadline:   timeOrZero(m.DeadlineUnix),
		Resolved:   m.Resolved,
		Outcome:    chain.StopOutcome(m.Outcome),
	}
}

func continuationToModel(r *chain.ContinuationRecord) storemodel.ContinuationModel {
	return storemodel.ContinuationModel{
		ID:            r.ID,
		ChainID:       r.ChainID,
		Symbol:        r.Symbol,
		Direction:     string(r.Direction),
		Kind:          string(r.Kind),
		TriggerPrice:  r.TriggerPrice,
		StopDist:      r.StopDist,
		Level:         r.Level,
		CreatedAtUnix: unixOrZero(r.CreatedAt),
		DeadlineUnix:  unixOrZero(r.Deadline),
		Resolved:      r.Resolved,
		Reentered:     r.Reentered,
	}
}

func continuationFromModel(m storemodel.ContinuationModel) *chain.ContinuationRecord {
	return &chain.ContinuationRecord{
		ID:           m.ID,
		ChainID:      m.ChainID,
		Symbol:       m.Symbol,
		Direction:    signal.Direction(m.Direction),
		Kind:         chain.ContinuationKind(m.Kind),
		TriggerPrice: m.TriggerPrice,
		StopDist:     m.StopDist,
		Level:        m.Level,
		CreatedAt:    timeOrZero(m.CreatedAtUnix),
		Deadline:     timeOrZero(m.DeadlineUnix),
		Resolved:     m.Resolved,
		Reentered:    m.Reentered,
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
