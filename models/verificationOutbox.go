package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

const (
	OutboxStatusPending    = "PENDING"
	OutboxStatusProcessing = "PROCESSING"
	OutboxStatusSent       = "SENT"
	OutboxStatusFailed     = "FAILED"
	OutboxStatusDead       = "DEAD"
)

// SlipVerificationJob is the transactional outbox row scheduling one deferred
// payment-proof check. It is written inside the order-creation transaction;
// the dispatcher picks it up after commit, so a slow checker never blocks
// checkout and a rollback never leaks a job.
type SlipVerificationJob struct {
	ID            int        `gorm:"primary_key;index:idx_slip_job_dispatch,priority:3" json:"id"`
	BusinessId    string     `gorm:"size:64;index" json:"business_id"`
	OrderId       int        `gorm:"index;not null" json:"order_id"`
	Status        string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_slip_job_dispatch,priority:1" json:"status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index;index:idx_slip_job_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt      *time.Time `gorm:"index" json:"locked_at"`
	LockedBy      *string    `gorm:"size:100" json:"locked_by"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	PublishedAt   *time.Time `gorm:"index" json:"published_at"`
	PubSubMsgId   *string    `gorm:"size:255" json:"pubsub_msg_id"`
	CorrelationId string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueSlipVerification writes the job record inside the caller's DB
// transaction but does NOT publish. Publishing happens asynchronously after
// commit via the outbox dispatcher.
func EnqueueSlipVerification(ctx context.Context, tx *gorm.DB, orderId int) error {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	job := SlipVerificationJob{
		BusinessId:    businessId,
		OrderId:       orderId,
		Status:        OutboxStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&job).Error
}

func ConvertToSlipMessage(job SlipVerificationJob) config.SlipVerificationMessage {
	return config.SlipVerificationMessage{
		OrderId:       job.OrderId,
		BusinessId:    job.BusinessId,
		CorrelationId: job.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
