package models

import (
	"context"
	"time"

	"github.com/waywedesign-cochin/smk-api/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Batch is one enrollment group of a course. CurrentCount tracks live
// occupancy and must stay within [0, SlotLimit] after every switch.
type Batch struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name" binding:"required"`
	CourseId     int       `gorm:"index;not null" json:"course_id" binding:"required"`
	Course       *Course   `json:"course,omitempty"`
	SlotLimit    int       `gorm:"not null" json:"slot_limit" binding:"required"`
	CurrentCount int       `gorm:"default:0" json:"current_count"`
	StartDate    time.Time `gorm:"type:date" json:"start_date"`
	LocationId   int       `gorm:"index;not null" json:"location_id"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b Batch) HasOpenSlot() bool {
	return b.CurrentCount < b.SlotLimit
}

// GetBatchForUpdate loads a batch with its course under a row lock so
// concurrent switches over the same batch serialize on the storage layer.
func GetBatchForUpdate(tx *gorm.DB, batchId int) (*Batch, error) {
	var batch Batch
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Course").
		First(&batch, batchId).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// IncrementBatchCount moves occupancy by delta (+1 / -1) as a single-row
// UPDATE inside the caller's transaction.
func IncrementBatchCount(tx *gorm.DB, batchId int, delta int) error {
	return tx.Model(&Batch{}).
		Where("id = ?", batchId).
		UpdateColumn("current_count", gorm.Expr("current_count + ?", delta)).Error
}

// ListBatches returns the cached batch list for a location, falling back to
// the database and repopulating the cache on a miss.
func ListBatches(ctx context.Context, locationId int) ([]*Batch, error) {
	results, err := utils.RetrieveRedisList[Batch](locationId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[Batch](ctx, locationId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[Batch](results, locationId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
