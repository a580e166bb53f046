package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

// SlipJobDispatcher drains the slip-verification outbox. With SLIP_TOPIC set
// it publishes claimed jobs to Pub/Sub for the worker subscription; without
// it (direct mode) it runs the verifier in-process. Either way delivery is
// at-least-once and the verifier's full-overwrite persistence makes that safe.
type SlipJobDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Verifier     *SlipVerifier
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewSlipJobDispatcher(db *gorm.DB, logger *logrus.Logger) *SlipJobDispatcher {
	return &SlipJobDispatcher{
		DB:             db,
		Logger:         logger,
		Verifier:       NewSlipVerifier(db, logger),
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    2 * time.Minute,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *SlipJobDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *SlipJobDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.SlipVerificationJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxStatusPending, models.OutboxStatusFailed}, now, models.OutboxStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Enforce max attempts: poison jobs go terminal (DLQ equivalent).
			if d.MaxAttempts > 0 && claimed[i].Attempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].Status = models.OutboxStatusDead
				if err := tx.Model(&models.SlipVerificationJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"status":          models.OutboxStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].Status = models.OutboxStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			claimed[i].LastError = nil
			if err := tx.Model(&models.SlipVerificationJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":          claimed[i].Status,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	direct := config.SlipTopicName() == ""
	for _, job := range claimed {
		// Skip terminal rows that were marked DEAD in the claim transaction.
		if job.Status == models.OutboxStatusDead {
			continue
		}
		if direct {
			if verr := d.Verifier.Verify(ctx, job.OrderId); verr != nil {
				d.markFailed(ctx, job.ID, verr, job.Attempts)
				continue
			}
			d.markSent(ctx, job.ID, nil, now)
			continue
		}

		pubID, pubErr := config.PublishSlipVerificationWithResult(ctx, models.ConvertToSlipMessage(job))
		if pubErr != nil {
			d.markFailed(ctx, job.ID, pubErr, job.Attempts)
			continue
		}
		d.markSent(ctx, job.ID, &pubID, now)
	}
}

func (d *SlipJobDispatcher) markSent(ctx context.Context, jobID int, pubsubMsgID *string, now time.Time) {
	db := d.DB.WithContext(ctx)
	_ = db.Model(&models.SlipVerificationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":          models.OutboxStatusSent,
			"published_at":    &now,
			"pub_sub_msg_id":  pubsubMsgID,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
}

func (d *SlipJobDispatcher) markFailed(ctx context.Context, jobID int, cause error, attempts int) {
	msg := cause.Error()
	next := time.Now().UTC().Add(backoffForAttempt(d.InitialBackoff, attempts))
	db := d.DB.WithContext(ctx)
	err := db.Model(&models.SlipVerificationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":          models.OutboxStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markFailed", "update job row", jobID, err)
	}
}

// backoffForAttempt doubles the delay per attempt, capped at 10 minutes.
func backoffForAttempt(initial time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = 5 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= 10*time.Minute {
			return 10 * time.Minute
		}
	}
	if backoff > 10*time.Minute {
		backoff = 10 * time.Minute
	}
	return backoff
}
