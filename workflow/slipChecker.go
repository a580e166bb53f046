package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidCheckerOutput marks checker stdout that is not well-formed JSON.
// The pipeline degrades it to a manual verdict, it is never surfaced.
var ErrInvalidCheckerOutput = errors.New("slip checker returned invalid output")

// SlipCheckOutput is the structured result of the out-of-process checker.
type SlipCheckOutput struct {
	Verdict      string   `json:"verdict"`
	Score        float64  `json:"score"`
	Hash         *string  `json:"hash"`
	Notes        []string `json:"notes"`
	Text         string   `json:"text"`
	OcrAvailable bool     `json:"ocr_available"`
}

// SlipChecker runs one proof-of-payment check. Implementations must honor
// ctx cancellation; timeout expiry is the only cancellation signal and is a
// terminal failure for that call.
type SlipChecker interface {
	Check(ctx context.Context, imagePath string, claimedAmount decimal.Decimal) (*SlipCheckOutput, []byte, error)
}

// CommandSlipChecker shells out to the checker binary configured via
// SLIP_CHECKER_CMD (plus optional SLIP_CHECKER_ARGS, space-separated). The
// image path and the claimed total are appended as the last two arguments;
// the checker writes its JSON result to stdout.
type CommandSlipChecker struct {
	Command string
	Args    []string
}

func NewCommandSlipChecker() *CommandSlipChecker {
	c := &CommandSlipChecker{Command: os.Getenv("SLIP_CHECKER_CMD")}
	if raw := strings.TrimSpace(os.Getenv("SLIP_CHECKER_ARGS")); raw != "" {
		c.Args = strings.Fields(raw)
	}
	return c
}

func (c *CommandSlipChecker) Check(ctx context.Context, imagePath string, claimedAmount decimal.Decimal) (*SlipCheckOutput, []byte, error) {
	if c.Command == "" {
		return nil, nil, errors.New("SLIP_CHECKER_CMD is not set")
	}

	args := append(append([]string{}, c.Args...), imagePath, claimedAmount.String())
	cmd := exec.CommandContext(ctx, c.Command, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		// Covers spawn failure, non-zero exit and ctx deadline kill alike.
		return nil, nil, err
	}

	raw := stdout.Bytes()
	var out SlipCheckOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, ErrInvalidCheckerOutput
	}
	return &out, raw, nil
}
