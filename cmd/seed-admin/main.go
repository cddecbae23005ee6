// seed-admin creates or updates the admin console user (username: smkAdmin).
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "smkAdmin"
	adminPassword = "Smk@Admin1"
	adminName     = "SMK Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	locationId := 1
	if v := os.Getenv("SEED_LOCATION_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			locationId = n
		}
	}

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Username:     adminUsername,
			DisplayName:  adminName,
			PasswordHash: hashedStr,
			Role:         "ADMIN",
			LocationId:   locationId,
			IsActive:     true,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("created admin user", adminUsername)
		return
	}

	updates := map[string]interface{}{
		"password_hash": hashedStr,
		"display_name":  adminName,
		"role":          "ADMIN",
		"is_active":     true,
	}
	if err := db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("updated admin user", adminUsername)
}
