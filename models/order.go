package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
)

// Order rows are owned by the order-management layer. This core reads them
// for context and writes only the slip_* columns (verification pipeline) and
// reacts to status values it finds; it never decides transitions itself.
type Order struct {
	ID          int              `gorm:"primary_key" json:"id"`
	BusinessId  string           `gorm:"size:64;index" json:"business_id"`
	OrderNumber string           `gorm:"size:40;index" json:"order_number"`
	ShopId      int              `gorm:"index" json:"shop_id"`
	UserId      *int             `gorm:"index" json:"user_id"`
	Status      OrderStatus      `gorm:"size:30;index" json:"status"`
	TotalAmount decimal.Decimal  `gorm:"type:decimal(20,2)" json:"total_amount"`
	PaidAmount  decimal.Decimal  `gorm:"type:decimal(20,2)" json:"paid_amount"`
	DeliveryLat *float64         `json:"delivery_lat"`
	DeliveryLng *float64         `json:"delivery_lng"`
	SlipPath    string           `gorm:"size:500" json:"slip_path"`

	SlipVerdict   *SlipVerdict     `gorm:"size:20" json:"slip_verdict"`
	SlipScore     *decimal.Decimal `gorm:"type:decimal(8,4)" json:"slip_score"`
	SlipHash      *string          `gorm:"size:128;index" json:"slip_hash"`
	SlipNotes     []byte           `gorm:"type:blob" json:"slip_notes"`
	SlipMeta      []byte           `gorm:"type:blob" json:"slip_meta"`
	SlipCheckedAt *time.Time       `json:"slip_checked_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOrderById returns (nil, nil) when the order does not exist. The async
// lane treats that as a deletion race, not an error.
func GetOrderById(ctx context.Context, orderId int) (*Order, error) {
	db := config.GetDB()
	var order Order
	err := db.WithContext(ctx).First(&order, orderId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ApplySlipVerification overwrites every slip_* column in one update. Re-runs
// of the pipeline for the same order are therefore safe: last writer wins, no
// incremental state.
func ApplySlipVerification(ctx context.Context, db *gorm.DB, orderId int, verdict SlipVerdict, score decimal.Decimal, hash *string, notes []byte, meta []byte, checkedAt time.Time) error {
	return db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", orderId).
		Updates(map[string]interface{}{
			"slip_verdict":    verdict,
			"slip_score":      score,
			"slip_hash":       hash,
			"slip_notes":      notes,
			"slip_meta":       meta,
			"slip_checked_at": checkedAt,
		}).Error
}

// HasOtherOrderWithSlipHash reports whether any order other than orderId has
// already stored this slip hash.
func HasOtherOrderWithSlipHash(ctx context.Context, db *gorm.DB, hash string, orderId int) (bool, error) {
	if hash == "" {
		return false, nil
	}
	var count int64
	err := db.WithContext(ctx).Model(&Order{}).
		Where("slip_hash = ? AND id <> ?", hash, orderId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
