package models

import (
	"context"
	"time"

	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Student is enrolled in exactly one batch at a time; CurrentBatchId is
// mutated only by the batch-switch and switch-edit engines.
type Student struct {
	ID             int       `gorm:"primary_key" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email          string    `gorm:"size:255" json:"email"`
	Phone          string    `gorm:"size:30" json:"phone"`
	GuardianName   string    `gorm:"size:255" json:"guardian_name"`
	GuardianPhone  string    `gorm:"size:30" json:"guardian_phone"`
	CurrentBatchId int       `gorm:"index;not null" json:"current_batch_id"`
	LocationId     int       `gorm:"index;not null" json:"location_id"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave canonicalizes contact fields on every create and update.
func (s *Student) BeforeSave(tx *gorm.DB) error {
	if s.Email != "" && !utils.IsValidEmail(s.Email) {
		return utils.BusinessRuleError("invalid email address")
	}
	return s.NormalizeContacts(utils.CountryCode)
}

// NormalizeContacts validates and canonicalizes contact numbers before the
// record is written.
func (s *Student) NormalizeContacts(countryCode string) error {
	if s.Phone != "" {
		if err := utils.ValidatePhoneNumber(s.Phone, countryCode); err != nil {
			return err
		}
		formatted, err := utils.FormatPhoneNumber(s.Phone, countryCode)
		if err != nil {
			return err
		}
		s.Phone = formatted
	}
	if s.GuardianPhone != "" {
		if err := utils.ValidatePhoneNumber(s.GuardianPhone, countryCode); err != nil {
			return err
		}
		formatted, err := utils.FormatPhoneNumber(s.GuardianPhone, countryCode)
		if err != nil {
			return err
		}
		s.GuardianPhone = formatted
	}
	return nil
}

// GetStudentForUpdate loads a student under a row lock inside the caller's
// transaction.
func GetStudentForUpdate(tx *gorm.DB, studentId int) (*Student, error) {
	var student Student
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&student, studentId).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// GetStudent reads a single student, redis first. The cached record is
// invalidated after every committed switch.
func GetStudent(ctx context.Context, id int) (*Student, error) {
	cached, err := utils.RetrieveRedis[Student](id)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	student, err := utils.FetchSingleModel[Student](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[Student](student, id); err != nil {
		return nil, err
	}
	return student, nil
}

// ListStudents reads the per-location student list, redis first.
func ListStudents(ctx context.Context, locationId int) ([]*Student, error) {
	results, err := utils.RetrieveRedisList[Student](locationId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[Student](ctx, locationId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[Student](results, locationId); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// StudentRevenue is the cached per-student revenue aggregate invalidated by
// the switch engines.
type StudentRevenue struct {
	StudentId int    `json:"student_id"`
	BatchId   int    `json:"batch_id"`
	Collected string `json:"collected"`
	Balance   string `json:"balance"`
}

// ListStudentRevenue aggregates collected/balance per student from the fee
// ledger, redis first.
func ListStudentRevenue(ctx context.Context, locationId int) ([]*StudentRevenue, error) {
	results, err := utils.RetrieveRedisList[StudentRevenue](locationId)
	if err != nil {
		return nil, err
	}
	if results != nil {
		return results, nil
	}

	db := config.GetDB()
	rows := make([]*StudentRevenue, 0)
	err = db.WithContext(ctx).
		Table("fees").
		Select(`fees.student_id,
			fees.batch_id,
			CAST(COALESCE(SUM(payments.amount), 0) AS CHAR) AS collected,
			CAST(fees.balance_amount AS CHAR) AS balance`).
		Joins(`LEFT JOIN payments ON payments.fee_id = fees.id AND payments.status NOT IN ?`,
			[]PaymentStatus{PaymentStatusCancelled, PaymentStatusInactive}).
		Joins("JOIN students ON students.id = fees.student_id").
		Where("students.location_id = ?", locationId).
		Where("fees.status IN ?", []FeeStatus{FeeStatusPending, FeeStatusActive}).
		Group("fees.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[StudentRevenue](rows, locationId); err != nil {
		return nil, err
	}
	return rows, nil
}
