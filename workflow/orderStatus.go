package workflow

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

// CreateOrder persists a new order with a freshly allocated reference code.
// Allocation failure fails the whole checkout: a skipped number would break
// reference uniqueness downstream.
func CreateOrder(ctx context.Context, order *models.Order) error {
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if !models.IsKnownOrderStatus(order.Status) {
		return fmt.Errorf("unknown order status %q", order.Status)
	}

	orderNumber, err := models.NextDocumentNumber(ctx, models.DocumentTypeInvoice, order.ShopId)
	if err != nil {
		return err
	}
	order.OrderNumber = orderNumber

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return OnOrderCreated(ctx, tx, order)
	})
	if err != nil {
		return err
	}

	AfterOrderCreated(ctx, *order)
	return nil
}

// OnOrderCreated runs inside the order-creation transaction: it records the
// creation in the audit trail and enqueues the deferred slip verification.
// Errors here roll the whole checkout back.
func OnOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	ref := models.OrderRef(order.ID)
	if err := models.RecordAuditLog(ctx, tx, "order.created",
		&ref,
		nil,
		map[string]any{"status": order.Status, "order_number": order.OrderNumber},
		nil, nil); err != nil {
		return err
	}
	return models.EnqueueSlipVerification(ctx, tx, order.ID)
}

// AfterOrderCreated is called once the creation transaction committed.
func AfterOrderCreated(ctx context.Context, order models.Order) {
	NotifyOrderCreated(ctx, order)
}

// SetOrderStatus records a status value decided elsewhere: it updates the
// row, appends the audit entry and any stock deltas the caller derived, all
// in one transaction, then fans the change out. It does not judge whether
// the transition is sensible; it only refuses status strings outside the
// known set.
func SetOrderStatus(ctx context.Context, orderId int, newStatus models.OrderStatus, movements []models.NewStockMovement) error {
	if !models.IsKnownOrderStatus(newStatus) {
		return fmt.Errorf("unknown order status %q", newStatus)
	}

	db := config.GetDB()
	var updated models.Order
	var previous models.OrderStatus

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d not found", orderId)
			}
			return err
		}
		previous = order.Status

		if err := tx.Model(&models.Order{}).
			Where("id = ?", orderId).
			Update("status", newStatus).Error; err != nil {
			return err
		}

		ref := models.OrderRef(orderId)
		if err := models.RecordAuditLog(ctx, tx, "order.status_changed",
			&ref,
			map[string]any{"status": previous},
			map[string]any{"status": newStatus},
			nil, nil); err != nil {
			return err
		}

		for _, m := range movements {
			if err := models.RecordStockMovement(ctx, tx, m); err != nil {
				return err
			}
		}

		order.Status = newStatus
		updated = order
		return nil
	})
	if err != nil {
		return err
	}

	// Fanout is a best-effort side effect of the committed change, never part
	// of it.
	NotifyOrderStatusChanged(ctx, updated, previous)
	return nil
}
