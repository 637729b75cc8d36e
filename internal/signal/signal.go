package signal

import (
	"fmt"
	"strings"
)

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Route classifies a signal by intended holding horizon. Each route carries
// its own stop and lot multipliers in the routes config section.
type Route string

const (
	RouteScalp    Route = "scalp"
	RouteIntraday Route = "intraday"
	RouteSwing    Route = "swing"
)

func (r Route) Valid() bool {
	switch r {
	case RouteScalp, RouteIntraday, RouteSwing:
		return true
	}
	return false
}

// RequiredTimeframes lists the timeframes whose trend must agree with the
// signal direction before entry.
func (r Route) RequiredTimeframes() []Timeframe {
	if r == RouteSwing {
		return []Timeframe{D1, H1}
	}
	return []Timeframe{M15, H1}
}

// Class marks how a signal interacts with the trend gate. Aggressive and
// reversal signals skip it.
type Class string

const (
	ClassStandard   Class = "standard"
	ClassAggressive Class = "aggressive"
	ClassReversal   Class = "reversal"
)

func (c Class) BypassesTrendGate() bool {
	return c == ClassAggressive || c == ClassReversal
}

// Timeframe is a chart interval used for trend alignment.
type Timeframe string

const (
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	D1  Timeframe = "D1"
)

// Signal is a normalized entry request. Normalization happens upstream;
// bracken only validates shape.
type Signal struct {
	Symbol    string
	Direction Direction
	Route     Route
	Class     Class
	Price     float64
	StopDist  float64   // unscaled stop distance in price units
	Targets   []float64 // ordered nearest first
}

func (s *Signal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("signal missing symbol")
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("signal %s has invalid direction %q", s.Symbol, s.Direction)
	}
	if !s.Route.Valid() {
		return fmt.Errorf("signal %s has invalid route %q", s.Symbol, s.Route)
	}
	if s.Class == "" {
		s.Class = ClassStandard
	}
	if s.Price <= 0 {
		return fmt.Errorf("signal %s has invalid price %v", s.Symbol, s.Price)
	}
	if s.StopDist <= 0 {
		return fmt.Errorf("signal %s has invalid stop distance %v", s.Symbol, s.StopDist)
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("signal %s has no targets", s.Symbol)
	}
	for i, t := range s.Targets {
		if t <= 0 {
			return fmt.Errorf("signal %s target[%d] invalid: %v", s.Symbol, i, t)
		}
	}
	return nil
}

// NearTarget is the first take-profit objective.
func (s *Signal) NearTarget() float64 { return s.Targets[0] }

// FarTarget is the extended objective, equal to NearTarget when only one is given.
func (s *Signal) FarTarget() float64 { return s.Targets[len(s.Targets)-1] }
