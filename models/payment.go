package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is money received against a fee. Reassigning a payment to another
// fee moves only FeeId; Amount and Status never change during reassignment.
type Payment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	StudentId     int             `gorm:"index;not null" json:"student_id" binding:"required"`
	FeeId         int             `gorm:"index;not null" json:"fee_id" binding:"required"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount" binding:"required"`
	Status        PaymentStatus   `gorm:"size:20;index;not null" json:"status"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date"`
	PaymentMode   string          `gorm:"size:50" json:"payment_mode"`
	ReceiptNumber string          `gorm:"size:255" json:"receipt_number"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

var countablePaymentStatuses = []PaymentStatus{PaymentStatusCancelled, PaymentStatusInactive}

// TotalPaidOnFee sums the amounts of all payments on the fee, excluding
// cancelled and inactive ones.
func TotalPaidOnFee(tx *gorm.DB, feeId int) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&Payment{}).
		Select("SUM(amount)").
		Where("fee_id = ? AND status NOT IN ?", feeId, countablePaymentStatuses).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// ReassignPayments repoints all countable payments from one fee to another.
// Amounts and statuses are untouched.
func ReassignPayments(tx *gorm.DB, fromFeeId int, toFeeId int) error {
	return tx.Model(&Payment{}).
		Where("fee_id = ? AND status NOT IN ?", fromFeeId, countablePaymentStatuses).
		UpdateColumn("fee_id", toFeeId).Error
}

// TotalPaidByStudent sums countable payment value across all of a student's
// fees. Switches must never change this number.
func TotalPaidByStudent(tx *gorm.DB, studentId int) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&Payment{}).
		Select("SUM(amount)").
		Where("student_id = ? AND status NOT IN ?", studentId, countablePaymentStatuses).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
