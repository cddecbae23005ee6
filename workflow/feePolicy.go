package workflow

import (
	"github.com/shopspring/decimal"
	"github.com/waywedesign-cochin/smk-api/models"
)

// NewFeeBalance is the balance carried onto a fee opened against baseFee
// when totalPaid has already been collected: max(baseFee - totalPaid, 0).
func NewFeeBalance(baseFee decimal.Decimal, totalPaid decimal.Decimal) decimal.Decimal {
	balance := baseFee.Sub(totalPaid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// SplitOverpaid reports whether a SPLIT must be rejected: the student has
// already paid more than the target batch charges, which requires a new
// admission instead of a switch.
func SplitOverpaid(totalPaid decimal.Decimal, baseFee decimal.Decimal) bool {
	return totalPaid.GreaterThan(baseFee)
}

// SplitClosingStatus decides how the old fee is closed under SPLIT: PAID
// when nothing is owed on it, INACTIVE when it is abandoned with a balance.
func SplitClosingStatus(oldBalance decimal.Decimal, totalPaid decimal.Decimal, oldFinalFee decimal.Decimal) models.FeeStatus {
	if oldBalance.IsZero() || totalPaid.GreaterThanOrEqual(oldFinalFee) {
		return models.FeeStatusPaid
	}
	return models.FeeStatusInactive
}
