package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fee is one charge owed by a student for a batch. Fees are never hard
// deleted in normal operation; a switch closes the old fee by status and the
// edit engine may delete only the fee created by the switch being reversed.
type Fee struct {
	ID             int             `gorm:"primary_key" json:"id"`
	StudentId      int             `gorm:"index;not null" json:"student_id" binding:"required"`
	BatchId        int             `gorm:"index;not null" json:"batch_id" binding:"required"`
	TotalCourseFee decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_course_fee"`
	FinalFee       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"final_fee"`
	BalanceAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance_amount"`
	AdvanceAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"advance_amount"`
	Status         FeeStatus       `gorm:"size:20;index;not null" json:"status"`
	TransferId     *string         `gorm:"size:36;index" json:"transfer_id,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOpenFeeForUpdate returns the student's single open fee, locked. Exactly
// one open fee per student is a soft invariant the engines preserve; when it
// is broken the most recent open fee wins and the caller decides how loudly
// to fail.
func GetOpenFeeForUpdate(tx *gorm.DB, studentId int, statuses ...FeeStatus) (*Fee, error) {
	if len(statuses) == 0 {
		statuses = []FeeStatus{FeeStatusPending}
	}
	var fee Fee
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND status IN ?", studentId, statuses).
		Order("created_at DESC, id DESC").
		First(&fee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &fee, nil
}

// FeeSnapshot captures the numeric fields the edit engine must restore when
// it reverses a switch that mutated the old fee.
type FeeSnapshot struct {
	FinalFee      decimal.Decimal `json:"final_fee"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	AdvanceAmount decimal.Decimal `json:"advance_amount"`
	Status        FeeStatus       `json:"status"`
	// TransferId is non-nil when the fee was itself created by an earlier
	// switch; a reversal must put it back, not blank it.
	TransferId *string `json:"transfer_id,omitempty"`
}

func (f Fee) Snapshot() FeeSnapshot {
	return FeeSnapshot{
		FinalFee:      f.FinalFee,
		BalanceAmount: f.BalanceAmount,
		AdvanceAmount: f.AdvanceAmount,
		Status:        f.Status,
		TransferId:    f.TransferId,
	}
}
