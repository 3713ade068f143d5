package database

import (
	"fmt"

	"gorm.io/gorm"
)

// SeedAdmin creates the first administrator when the users table is empty.
// It reports whether a user was created.
func SeedAdmin(db *gorm.DB, username, passwordHash string) (bool, error) {
	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	admin := &User{
		Username:     username,
		PasswordHash: passwordHash,
		RealName:     "Administrator",
		Role:         RoleAdmin,
		Status:       1,
	}
	if err := db.Create(admin).Error; err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}
	return true, nil
}
