package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
)

type Category struct {
	ID             int                    `gorm:"primary_key" json:"id"`
	UserId         int                    `gorm:"uniqueIndex:idx_category_user_name,priority:1;not null" json:"user_id"`
	Name           string                 `gorm:"size:100;uniqueIndex:idx_category_user_name,priority:2;not null" json:"name"`
	Classification CategoryClassification `gorm:"size:10;not null;default:'expense'" json:"classification"`
	CreatedAt      time.Time              `gorm:"autoCreateTime" json:"created_at"`
}

type Tag struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserId    int       `gorm:"uniqueIndex:idx_tag_user_name,priority:1;not null" json:"user_id"`
	Name      string    `gorm:"size:100;uniqueIndex:idx_tag_user_name,priority:2;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Merchant struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserId    int       `gorm:"uniqueIndex:idx_merchant_user_name,priority:1;not null" json:"user_id"`
	Name      string    `gorm:"size:255;uniqueIndex:idx_merchant_user_name,priority:2;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// getOrCreate loads the user's row named name into row, inserting row as given when missing.
// A concurrent insert of the same name is resolved by re-reading.
func getOrCreate(ctx context.Context, tx *gorm.DB, userId int, name string, row any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", utils.ErrInvalidInput)
	}
	db := tx.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", userId, name).Take(row).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err := db.Create(row).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return db.Where("user_id = ? AND name = ?", userId, name).Take(row).Error
		}
		return err
	}
	return nil
}

func GetOrCreateCategory(ctx context.Context, tx *gorm.DB, userId int, name string, classification CategoryClassification) (*Category, error) {
	c := Category{UserId: userId, Name: strings.TrimSpace(name), Classification: classification}
	if err := getOrCreate(ctx, tx, userId, name, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func GetOrCreateTag(ctx context.Context, tx *gorm.DB, userId int, name string) (*Tag, error) {
	t := Tag{UserId: userId, Name: strings.TrimSpace(name)}
	if err := getOrCreate(ctx, tx, userId, name, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func GetOrCreateMerchant(ctx context.Context, tx *gorm.DB, userId int, name string) (*Merchant, error) {
	m := Merchant{UserId: userId, Name: strings.TrimSpace(name)}
	if err := getOrCreate(ctx, tx, userId, name, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
