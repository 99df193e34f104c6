package service

import (
	"math"

	"farb/internal/domain/model"
)

// Commission estimates the round-trip execution cost for closing a leg
// of the given size at the given price.
func Commission(quantity, closePrice, feeRate float64) float64 {
	return math.Abs(quantity * closePrice * feeRate)
}

// RealizedPnL computes the realized profit of the primary leg at close,
// net of the commission estimate.
func RealizedPnL(positionType model.PositionType, entryPrice, closePrice, quantity, feeRate float64) float64 {
	var gross float64
	if positionType == model.TypeLong {
		gross = (closePrice - entryPrice) * quantity
	} else {
		gross = (entryPrice - closePrice) * quantity
	}
	return gross - Commission(quantity, closePrice, feeRate)
}
