package models

import (
	"errors"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestSequenceDateOfNormalizesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	in := time.Date(2025, 1, 2, 3, 4, 5, 6, loc) // 2025-01-01T20:04:05Z
	got := sequenceDateOf(in)
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestIsRetryableLockErr(t *testing.T) {
	if !isRetryableLockErr(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatalf("deadlock should be retryable")
	}
	if !isRetryableLockErr(&mysqlDriver.MySQLError{Number: 1205}) {
		t.Fatalf("lock wait timeout should be retryable")
	}
	if isRetryableLockErr(&mysqlDriver.MySQLError{Number: 1062}) {
		t.Fatalf("duplicate key is not retryable here")
	}
	if isRetryableLockErr(errors.New("boom")) {
		t.Fatalf("arbitrary errors are not retryable")
	}
}

func TestDeriveBranchCode(t *testing.T) {
	if got := DeriveBranchCode(1); got != "B001" {
		t.Fatalf("got %q", got)
	}
	if got := DeriveBranchCode(1234); got != "B1234" {
		t.Fatalf("got %q", got)
	}
}
