package database

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestFinancialDB(t *testing.T) *FinancialDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "financials.db")
	db, err := OpenFinancialDB(path)
	if err != nil {
		t.Fatalf("OpenFinancialDB() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() error: %v", err)
	}
	return db
}

func TestSeedInsertsAllQuarters(t *testing.T) {
	db := openTestFinancialDB(t)
	ctx := context.Background()

	inserted, err := db.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if inserted != 6 {
		t.Errorf("Seed() inserted %d rows, want 6", inserted)
	}

	count, err := db.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 6 {
		t.Errorf("Count() = %d, want 6", count)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openTestFinancialDB(t)
	ctx := context.Background()

	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("first Seed() error: %v", err)
	}
	inserted, err := db.Seed(ctx)
	if err != nil {
		t.Fatalf("second Seed() error: %v", err)
	}
	if inserted != 0 {
		t.Errorf("second Seed() inserted %d rows, want 0", inserted)
	}

	count, err := db.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 6 {
		t.Errorf("Count() after reseed = %d, want 6", count)
	}
}

func TestSeededProfitTotals(t *testing.T) {
	db := openTestFinancialDB(t)
	ctx := context.Background()

	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	var total int
	err := db.DB.QueryRowContext(ctx,
		"SELECT SUM(profit_millions) FROM quarterly_financials WHERE year = 2023").Scan(&total)
	if err != nil {
		t.Fatalf("profit query error: %v", err)
	}
	if total != 105000 {
		t.Errorf("2023 profit total = %d, want 105000", total)
	}
}
