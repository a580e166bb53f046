package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// Shop is a selling branch. Everything except BranchCode is owned by the
// catalog/shop-management layer; this core owns BranchCode because document
// numbering depends on it.
type Shop struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index" json:"business_id"`
	Name       string    `gorm:"size:255" json:"name"`
	BranchCode string    `gorm:"size:20;index" json:"branch_code"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// getBranchCode resolves the branch code for a shop, redis-cached.
// Shops created before branch codes existed get one derived from their id,
// persisted exactly once: the guarded UPDATE only fills an empty column, so
// concurrent derivers converge on the same stored value.
func getBranchCode(ctx context.Context, shopId int) (string, error) {
	redisKey := "branchCode:" + fmt.Sprint(shopId)
	var cached string
	exists, err := config.GetRedisObject(redisKey, &cached)
	if err != nil {
		return "", err
	}
	if exists && cached != "" {
		return cached, nil
	}

	db := config.GetDB()
	var shop Shop
	if err := db.WithContext(ctx).First(&shop, shopId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", utils.ErrorRecordNotFound
		}
		return "", err
	}

	code := shop.BranchCode
	if code == "" {
		code = DeriveBranchCode(shopId)
		if err := db.WithContext(ctx).Model(&Shop{}).
			Where("id = ? AND (branch_code IS NULL OR branch_code = '')", shopId).
			Update("branch_code", code).Error; err != nil {
			return "", err
		}
		// A concurrent writer may have filled the column with the same
		// deterministic value; re-read to be sure.
		var stored string
		if err := db.WithContext(ctx).Model(&Shop{}).
			Where("id = ?", shopId).Select("branch_code").Scan(&stored).Error; err != nil {
			return "", err
		}
		if stored != "" {
			code = stored
		}
	}

	if err := config.SetRedisObject(redisKey, &code, 0); err != nil {
		return "", err
	}
	return code, nil
}

// DeriveBranchCode is the deterministic fallback for shops without an
// assigned code.
func DeriveBranchCode(shopId int) string {
	return fmt.Sprintf("B%03d", shopId)
}
