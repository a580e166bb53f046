package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// DocumentSequence holds the last issued number per (type, branch, day).
// last_number only ever moves forward; a failed allocation rolls the whole
// transaction back so no number is consumed.
type DocumentSequence struct {
	ID           int          `gorm:"primary_key" json:"id"`
	DocumentType DocumentType `gorm:"size:40;not null;uniqueIndex:idx_doc_seq_key,priority:1" json:"document_type"`
	BranchCode   string       `gorm:"size:20;not null;uniqueIndex:idx_doc_seq_key,priority:2" json:"branch_code"`
	SequenceDate time.Time    `gorm:"type:date;not null;uniqueIndex:idx_doc_seq_key,priority:3" json:"sequence_date"`
	LastNumber   int64        `gorm:"not null;default:0" json:"last_number"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	seqMaxAttempts = 3
	seqLockTTL     = 10 * time.Second
)

// NextDocumentNumber allocates the next reference code for (documentType,
// shop branch, date), e.g. "B001-20250101-00001". Counters are scoped per
// key, so allocations for different branches, types or days never contend.
// Any storage or lock failure propagates: silently skipping a number would
// corrupt downstream reference uniqueness.
//
// when is optional and defaults to now (UTC day).
func NextDocumentNumber(ctx context.Context, documentType DocumentType, shopId int, when ...time.Time) (string, error) {
	branchCode, err := getBranchCode(ctx, shopId)
	if err != nil {
		return "", err
	}

	date := time.Now().UTC()
	if len(when) > 0 {
		date = when[0]
	}
	seqDate := sequenceDateOf(date)
	dateKey := seqDate.Format("20060102")

	// Best-effort cross-instance serialization. The row lock below is the
	// authoritative one; reliability must not depend on redis.
	release, _ := utils.ObtainRedisLock(ctx,
		fmt.Sprintf("docseq:%s:%s:%s", documentType, branchCode, dateKey), seqLockTTL)
	defer release()

	db := config.GetDB()
	var number int64
	for attempt := 1; ; attempt++ {
		number, err = allocateSequenceNumber(ctx, db, documentType, branchCode, seqDate)
		if err == nil {
			break
		}
		// Deadlock / lock wait timeout: retry a bounded number of times
		// before failing the caller.
		if attempt < seqMaxAttempts && isRetryableLockErr(err) {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
			continue
		}
		return "", fmt.Errorf("allocate %s sequence for %s/%s: %w", documentType, branchCode, dateKey, err)
	}

	return fmt.Sprintf("%s-%s-%05d", branchCode, dateKey, number), nil
}

// allocateSequenceNumber runs one atomic increment: lock the counter row
// (creating it on first use), bump it, and re-read the stored value.
func allocateSequenceNumber(ctx context.Context, db *gorm.DB, documentType DocumentType, branchCode string, seqDate time.Time) (int64, error) {
	var number int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq DocumentSequence
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_type = ? AND branch_code = ? AND sequence_date = ?", documentType, branchCode, seqDate).
			First(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = DocumentSequence{
				DocumentType: documentType,
				BranchCode:   branchCode,
				SequenceDate: seqDate,
				LastNumber:   0,
			}
			if cerr := tx.Create(&seq).Error; cerr != nil {
				if !utils.IsDuplicateKeyErr(cerr) {
					return cerr
				}
				// Lost the creation race; lock the winner's row.
				if serr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("document_type = ? AND branch_code = ? AND sequence_date = ?", documentType, branchCode, seqDate).
					First(&seq).Error; serr != nil {
					return serr
				}
			}
		} else if err != nil {
			return err
		}

		if err := tx.Model(&DocumentSequence{}).
			Where("id = ?", seq.ID).
			Update("last_number", gorm.Expr("last_number + 1")).Error; err != nil {
			return err
		}
		// Re-read the stored value rather than trusting the in-memory copy.
		if err := tx.Model(&DocumentSequence{}).
			Where("id = ?", seq.ID).
			Select("last_number").Scan(&number).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

func sequenceDateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func isRetryableLockErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1205 lock wait timeout, 1213 deadlock victim
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}
	return false
}
