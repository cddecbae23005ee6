package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course supplies the base fee a batch charges.
type Course struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Code           string          `gorm:"size:50" json:"code"`
	BaseFee        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_fee" binding:"required"`
	DurationMonths int             `gorm:"default:0" json:"duration_months"`
	LocationId     int             `gorm:"index;not null" json:"location_id"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
