package pip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeAndValue(t *testing.T) {
	cases := []struct {
		symbol string
		size   float64
		value  float64
	}{
		{"EURUSD", 0.0001, 10.0},
		{"GBPUSD", 0.0001, 10.0},
		{"USDJPY", 0.01, 9.09},
		{"EURJPY", 0.01, 9.09},
		{"XAUUSD", 0.01, 1.0},
		{"GOLD", 0.01, 1.0},
		{"XAGUSD", 0.01, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.symbol, func(t *testing.T) {
			assert.InDelta(t, tc.size, Size(tc.symbol), 1e-12)
			assert.InDelta(t, tc.value, ValuePerLot(tc.symbol), 1e-12)
		})
	}
}

func TestPipsNormalizesSign(t *testing.T) {
	assert.InDelta(t, 25, Pips("EURUSD", 0.0025), 1e-9)
	assert.InDelta(t, 25, Pips("EURUSD", -0.0025), 1e-9)
	assert.InDelta(t, 550, Pips("XAUUSD", 5.50), 1e-9)
}

func TestRiskUSD(t *testing.T) {
	// 0.10 lots, 50 pips, $10/pip per lot
	assert.InDelta(t, 50.0, RiskUSD("EURUSD", 0.10, 0.0050), 1e-9)
	// gold: 0.02 lots, 550 pips, $1/pip per lot
	assert.InDelta(t, 11.0, RiskUSD("XAUUSD", 0.02, 5.50), 1e-9)
}

func TestDistForRiskInvertsRiskUSD(t *testing.T) {
	dist := DistForRisk("EURUSD", 0.10, 50)
	assert.InDelta(t, 0.0050, dist, 1e-9)
	assert.InDelta(t, 50.0, RiskUSD("EURUSD", 0.10, dist), 1e-9)

	// a $10 cap on 0.02 lots of gold sits 500 pips out
	assert.InDelta(t, 5.00, DistForRisk("XAUUSD", 0.02, 10), 1e-9)

	assert.Zero(t, DistForRisk("EURUSD", 0, 10))
	assert.Zero(t, DistForRisk("EURUSD", 0.10, 0))
}
