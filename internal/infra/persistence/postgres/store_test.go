package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"aquacast/pkg/domain"
)

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("driver: got %q want %q", driverName, defaultDriver)
		}
		return nil, errors.New("boom")
	})
	defer restore()

	if _, err := NewStore(context.Background(), "postgres://example/db"); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStoreDefaultDSN(t *testing.T) {
	var seen string
	restore := OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		seen = dsn
		return nil, errors.New("stop here")
	})
	defer restore()

	_, _ = NewStore(context.Background(), "")
	if seen != defaultDSN {
		t.Fatalf("default dsn: got %q want %q", seen, defaultDSN)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schema)
	if len(stmts) != 2 {
		t.Fatalf("statement count: got %d want 2", len(stmts))
	}
	if !strings.Contains(stmts[0], "projection_points") {
		t.Fatalf("first statement should create projection_points: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], "forecast_summaries") {
		t.Fatalf("second statement should create forecast_summaries: %s", stmts[1])
	}
}

func TestNilDate(t *testing.T) {
	if v := nilDate(nil); v != nil {
		t.Fatalf("nil input must stay nil, got %v", v)
	}
	d := time.Date(2026, 8, 29, 13, 45, 0, 0, time.FixedZone("CEST", 2*3600))
	got, ok := nilDate(&d).(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", nilDate(&d))
	}
	if !got.Equal(domain.CivilDate(d)) {
		t.Fatalf("date not truncated to civil UTC midnight: %v", got)
	}
}
