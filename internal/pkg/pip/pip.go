// Package pip holds the per-symbol pip size and dollar value tables.
package pip

import "strings"

const (
	standardSize = 0.0001
	jpySize      = 0.01
	metalSize    = 0.01

	standardValue = 10.0 // USD per pip per 1.0 lot
	jpyValue      = 9.09
	metalValue    = 1.0
)

func isJPY(symbol string) bool {
	return strings.Contains(strings.ToUpper(symbol), "JPY")
}

func isMetal(symbol string) bool {
	s := strings.ToUpper(symbol)
	return strings.Contains(s, "XAU") || strings.Contains(s, "GOLD") || strings.Contains(s, "XAG")
}

// Size returns the pip size in price units for a symbol.
func Size(symbol string) float64 {
	switch {
	case isMetal(symbol):
		return metalSize
	case isJPY(symbol):
		return jpySize
	default:
		return standardSize
	}
}

// ValuePerLot returns the dollar value of one pip for a 1.0 lot position.
func ValuePerLot(symbol string) float64 {
	switch {
	case isMetal(symbol):
		return metalValue
	case isJPY(symbol):
		return jpyValue
	default:
		return standardValue
	}
}

// Pips converts a price distance into pips for a symbol.
func Pips(symbol string, dist float64) float64 {
	if dist < 0 {
		dist = -dist
	}
	return dist / Size(symbol)
}

// RiskUSD is the dollar loss of a position of the given lot moving the given
// price distance against it.
func RiskUSD(symbol string, lot, dist float64) float64 {
	return Pips(symbol, dist) * ValuePerLot(symbol) * lot
}

// DistForRisk inverts RiskUSD: the price distance at which a position of the
// given lot loses the given dollars.
func DistForRisk(symbol string, lot, usd float64) float64 {
	if lot <= 0 || usd <= 0 {
		return 0
	}
	return usd / (ValuePerLot(symbol) * lot) * Size(symbol)
}
