package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// StockMovement is one immutable row of the inventory ledger. Rows are only
// ever inserted; on-hand for any (product, variant, shop) is the fold of its
// movements in insertion order. No update or delete path exists in this
// package.
type StockMovement struct {
	ID            string           `gorm:"size:36;primary_key" json:"id"` // uuid
	BusinessId    string           `gorm:"size:64;index:idx_stock_move_item,priority:1" json:"business_id"`
	EventType     StockEventType   `gorm:"size:40;not null" json:"event_type"`
	ProductId     int              `gorm:"index:idx_stock_move_item,priority:2;not null" json:"product_id"`
	VariantId     int              `gorm:"index:idx_stock_move_item,priority:3" json:"variant_id"`
	ShopId        int              `gorm:"index:idx_stock_move_item,priority:4;not null" json:"shop_id"`
	Quantity      decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"` // signed delta
	UnitPrice     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_price"`
	Reference     *DocumentRef     `gorm:"embedded" json:"reference"`
	ActorId       *int             `gorm:"index" json:"actor_id"`
	Note          string           `gorm:"size:255" json:"note"`
	Meta          []byte           `gorm:"type:blob" json:"meta"`
	CorrelationId string           `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockMovement struct {
	EventType StockEventType
	ProductId int
	VariantId int
	ShopId    int
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
	Reference *DocumentRef
	ActorId   *int
	Note      string
	Meta      []byte
}

// RecordStockMovement appends one movement inside the caller's transaction.
// Quantities are recorded as given; business validation is the caller's job.
// Storage errors propagate: the ledger is the system of record.
func RecordStockMovement(ctx context.Context, tx *gorm.DB, input NewStockMovement) error {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	actorId := input.ActorId
	if actorId == nil {
		if uid, ok := utils.GetUserIdFromContext(ctx); ok {
			actorId = &uid
		}
	}

	movement := StockMovement{
		ID:            uuid.NewString(),
		BusinessId:    businessId,
		EventType:     input.EventType,
		ProductId:     input.ProductId,
		VariantId:     input.VariantId,
		ShopId:        input.ShopId,
		Quantity:      input.Quantity,
		UnitPrice:     input.UnitPrice,
		Reference:     input.Reference,
		ActorId:       actorId,
		Note:          input.Note,
		Meta:          input.Meta,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&movement).Error
}

// GetStockOnHand folds all movements for one (product, variant, shop).
func GetStockOnHand(ctx context.Context, productId, variantId, shopId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&StockMovement{}).
		Where("product_id = ? AND variant_id = ? AND shop_id = ?", productId, variantId, shopId).
		Select("SUM(quantity)").Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// StockOnHandRow is one line of a rebuilt on-hand report.
type StockOnHandRow struct {
	ProductId int             `json:"product_id"`
	VariantId int             `json:"variant_id"`
	ShopId    int             `json:"shop_id"`
	OnHand    decimal.Decimal `gorm:"column:on_hand" json:"on_hand"`
}

// RebuildStockOnHand reconstructs per-item on-hand from the full ledger.
// Used by cmd/stock-rebuild to cross-check any derived caches downstream.
func RebuildStockOnHand(ctx context.Context, businessId string) ([]StockOnHandRow, error) {
	db := config.GetDB()
	var rows []StockOnHandRow
	err := db.WithContext(ctx).Model(&StockMovement{}).
		Where("business_id = ?", businessId).
		Select("product_id, variant_id, shop_id, SUM(quantity) AS on_hand").
		Group("product_id, variant_id, shop_id").
		Order("product_id, variant_id, shop_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
