package drawer

import (
	"github.com/shopspring/decimal"

	"posdrawer/backend/internal/domain"
)

// Reconcile compares the counted cash against the expected drawer balance.
// The variance is rounded to the currency's minor units before it is judged,
// so sub-cent noise never reports a short or over drawer. Nothing is
// corrected; the result is informational.
func Reconcile(expected, counted decimal.Decimal, minorUnits int32) domain.Reconciliation {
	if minorUnits < 0 {
		minorUnits = 0
	}
	variance := counted.Sub(expected).Round(minorUnits)

	status := domain.VarianceBalanced
	switch variance.Sign() {
	case 1:
		status = domain.VarianceOver
	case -1:
		status = domain.VarianceShort
	}

	return domain.Reconciliation{
		Expected: expected,
		Counted:  counted,
		Variance: variance,
		Status:   status,
	}
}
