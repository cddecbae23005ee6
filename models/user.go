package models

import (
	"context"
	"errors"
	"time"

	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/utils"
	"gorm.io/gorm"
)

// User is a staff account; the auth middleware turns a user's token into the
// actor identity the engines record.
type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:255;uniqueIndex;not null" json:"username" binding:"required"`
	DisplayName  string    `gorm:"size:255;not null" json:"display_name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:50;default:staff" json:"role"`
	LocationId   int       `gorm:"index;not null" json:"location_id"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies credentials and issues a token for the actor.
func Authenticate(ctx context.Context, username string, password string) (string, *User, error) {
	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, errors.New("account disabled")
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return "", nil, errors.New("invalid credentials")
	}
	token, err := utils.JwtGenerate(user.ID, user.DisplayName, user.LocationId, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
