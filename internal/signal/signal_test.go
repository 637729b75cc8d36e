package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSignal() *Signal {
	return &Signal{
		Symbol:    "EURUSD",
		Direction: Long,
		Route:     RouteScalp,
		Price:     1.0850,
		StopDist:  0.0020,
		Targets:   []float64{1.0870, 1.0890},
	}
}

func TestValidateDefaultsClass(t *testing.T) {
	s := validSignal()
	require.NoError(t, s.Validate())
	assert.Equal(t, ClassStandard, s.Class)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Signal)
	}{
		{"empty symbol", func(s *Signal) { s.Symbol = " " }},
		{"bad direction", func(s *Signal) { s.Direction = "sideways" }},
		{"bad route", func(s *Signal) { s.Route = "position" }},
		{"zero price", func(s *Signal) { s.Price = 0 }},
		{"negative stop distance", func(s *Signal) { s.StopDist = -0.001 }},
		{"no targets", func(s *Signal) { s.Targets = nil }},
		{"zero target", func(s *Signal) { s.Targets = []float64{1.0870, 0} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSignal()
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestRequiredTimeframes(t *testing.T) {
	assert.Equal(t, []Timeframe{M15, H1}, RouteScalp.RequiredTimeframes())
	assert.Equal(t, []Timeframe{M15, H1}, RouteIntraday.RequiredTimeframes())
	assert.Equal(t, []Timeframe{D1, H1}, RouteSwing.RequiredTimeframes())
}

func TestClassBypass(t *testing.T) {
	assert.False(t, ClassStandard.BypassesTrendGate())
	assert.True(t, ClassAggressive.BypassesTrendGate())
	assert.True(t, ClassReversal.BypassesTrendGate())
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
}

func TestTargetAccessors(t *testing.T) {
	s := validSignal()
	assert.InDelta(t, 1.0870, s.NearTarget(), 1e-9)
	assert.InDelta(t, 1.0890, s.FarTarget(), 1e-9)

	s.Targets = []float64{1.0870}
	assert.InDelta(t, 1.0870, s.FarTarget(), 1e-9)
}
