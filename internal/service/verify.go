package service

import (
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// deviationExceedsTolerance returns the relative deviation |paid-expected|/expected
// and whether it lies outside the tolerance fraction.
func deviationExceedsTolerance(expected, paid decimal.Decimal, tolerancePct float64) (decimal.Decimal, bool) {
	if expected.IsZero() {
		return decimal.Zero, false
	}
	deviation := paid.Sub(expected).Abs().Div(expected)
	return deviation, deviation.GreaterThan(decimal.NewFromFloat(tolerancePct))
}

// checkTolerance is observability only: a mismatch is logged, never blocks
// forwarding.
func (s *watcherService) checkTolerance(logCtx *log.Entry, expected, paid decimal.Decimal) {
	logCtx.WithFields(log.Fields{
		"sol_expected": expected.String(),
		"sol_paid":     paid.String(),
		"tolerance":    s.tolerancePct,
	}).Info("Verifying paid amount")

	if _, exceeded := deviationExceedsTolerance(expected, paid, s.tolerancePct); exceeded {
		logCtx.Warn("Price outside tolerance, forwarding anyway")
	}
}
