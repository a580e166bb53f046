package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// SlipVerifier runs the asynchronous payment-proof pipeline for one order.
// Every path ends in a persisted, safe slip state: checker failures degrade
// to a manual verdict and are never surfaced. Only persistence errors return,
// so the queue redelivers and the full-overwrite write stays idempotent.
type SlipVerifier struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Checker SlipChecker
	Storage utils.SlipStorage

	CheckTimeout time.Duration
}

func NewSlipVerifier(db *gorm.DB, logger *logrus.Logger) *SlipVerifier {
	return &SlipVerifier{
		DB:           db,
		Logger:       logger,
		Checker:      NewCommandSlipChecker(),
		Storage:      utils.NewSlipStorage(),
		CheckTimeout: 30 * time.Second,
	}
}

// slipOutcome is the pipeline's internal result before persistence.
type slipOutcome struct {
	Verdict models.SlipVerdict
	Score   float64
	Hash    *string
	Notes   []string
	Meta    []byte
}

func manualOutcome(note string) slipOutcome {
	return slipOutcome{
		Verdict: models.SlipVerdictManual,
		Score:   0,
		Hash:    nil,
		Notes:   []string{note},
	}
}

// outcomeFromChecker maps the checker call result onto a slip outcome.
// Process failure and malformed output both degrade to manual.
func outcomeFromChecker(out *SlipCheckOutput, raw []byte, err error) slipOutcome {
	if err == ErrInvalidCheckerOutput {
		o := manualOutcome(models.SlipNoteInvalidOutput)
		o.Meta = raw
		return o
	}
	if err != nil {
		return manualOutcome(models.SlipNoteProcessFailed)
	}

	verdict := models.SlipVerdict(out.Verdict)
	switch verdict {
	case models.SlipVerdictApproved, models.SlipVerdictSuspicious, models.SlipVerdictManual:
	default:
		// Unknown verdict string is as good as no verdict.
		o := manualOutcome(models.SlipNoteInvalidOutput)
		o.Meta = raw
		return o
	}

	hash := out.Hash
	if hash != nil && *hash == "" {
		hash = nil
	}
	notes := out.Notes
	if notes == nil {
		notes = []string{}
	}
	return slipOutcome{
		Verdict: verdict,
		Score:   out.Score,
		Hash:    hash,
		Notes:   notes,
		Meta:    raw,
	}
}

// applyDuplicateOverride forces a suspicious verdict when the slip hash was
// already seen on another order. It always wins over the checker's verdict.
func applyDuplicateOverride(o slipOutcome, duplicate bool) slipOutcome {
	if !duplicate {
		return o
	}
	o.Verdict = models.SlipVerdictSuspicious
	o.Notes = append(o.Notes, models.SlipNoteDuplicateHash)
	return o
}

// Verify runs the whole pipeline for orderId. Re-execution (at-least-once
// redelivery) is safe: each run fully overwrites the slip_* columns.
func (v *SlipVerifier) Verify(ctx context.Context, orderId int) error {
	order, err := models.GetOrderById(ctx, orderId)
	if err != nil {
		return err
	}
	if order == nil {
		// Deleted between enqueue and delivery; nothing to verify.
		return nil
	}

	outcome := v.checkSlip(ctx, order)

	if outcome.Hash != nil {
		duplicate, err := models.HasOtherOrderWithSlipHash(ctx, v.DB, *outcome.Hash, order.ID)
		if err != nil {
			return err
		}
		outcome = applyDuplicateOverride(outcome, duplicate)
	}

	return v.persist(ctx, order.ID, outcome)
}

func (v *SlipVerifier) checkSlip(ctx context.Context, order *models.Order) slipOutcome {
	if order.SlipPath == "" {
		return manualOutcome(models.SlipNoteNoSlip)
	}

	localPath, cleanup, err := v.Storage.Fetch(ctx, order.SlipPath)
	if err != nil {
		config.LogWarn(v.Logger, "slipVerification.go", "checkSlip", "fetch slip file", order.ID, err)
		return manualOutcome(models.SlipNoteFileMissing)
	}
	defer cleanup()

	checkCtx, cancel := context.WithTimeout(ctx, v.CheckTimeout)
	defer cancel()

	out, raw, err := v.Checker.Check(checkCtx, localPath, order.TotalAmount)
	if err != nil && err != ErrInvalidCheckerOutput {
		config.LogWarn(v.Logger, "slipVerification.go", "checkSlip", "slip checker process", order.ID, err)
	}
	return outcomeFromChecker(out, raw, err)
}

func (v *SlipVerifier) persist(ctx context.Context, orderId int, o slipOutcome) error {
	notesJSON, err := json.Marshal(o.Notes)
	if err != nil {
		return err
	}
	return models.ApplySlipVerification(ctx, v.DB, orderId,
		o.Verdict, decimal.NewFromFloat(o.Score), o.Hash, notesJSON, o.Meta, time.Now().UTC())
}
