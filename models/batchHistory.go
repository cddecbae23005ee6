package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchHistory records one batch switch. Rows are append-only; only the
// chronologically latest row for a student may be deleted, and only by the
// switch-edit engine while reversing that switch.
type BatchHistory struct {
	ID            int       `gorm:"primary_key" json:"id"`
	StudentId     int       `gorm:"index;not null" json:"student_id"`
	FromBatchId   int       `gorm:"not null" json:"from_batch_id"`
	ToBatchId     int       `gorm:"not null" json:"to_batch_id"`
	ChangeDate    time.Time `gorm:"type:date;not null" json:"change_date"`
	Reason        string    `gorm:"type:text" json:"reason"`
	TransferId    string    `gorm:"size:36;uniqueIndex;not null" json:"transfer_id"`
	FeeIdFrom     int       `gorm:"not null" json:"fee_id_from"`
	FeeIdTo       int       `gorm:"not null" json:"fee_id_to"`
	FeeManageMode FeeAction `gorm:"size:20;not null" json:"fee_manage_mode"`
	// PriorFeeState preserves the old fee's numeric fields as JSON so a
	// reversal can restore them exactly.
	PriorFeeState []byte    `gorm:"type:text" json:"prior_fee_state,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetLatestBatchHistoryForUpdate returns the student's most recent history
// row (creation time, id as tiebreak), locked for the edit engine.
func GetLatestBatchHistoryForUpdate(tx *gorm.DB, studentId int) (*BatchHistory, error) {
	var history BatchHistory
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ?", studentId).
		Order("created_at DESC, id DESC").
		First(&history).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &history, nil
}

// ListBatchHistory returns a student's switch history, newest first.
func ListBatchHistory(tx *gorm.DB, studentId int) ([]*BatchHistory, error) {
	var rows []*BatchHistory
	err := tx.
		Where("student_id = ?", studentId).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
