package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// FinancialDB is the SQLite store for structured quarterly results. It backs
// the SQL tool the agent uses for numeric questions the filing text cannot
// answer precisely.
type FinancialDB struct {
	DB *sql.DB
}

// Quarter is one row of quarterly results, in millions of dollars.
type Quarter struct {
	Year    int
	Quarter string
	Revenue int
	Profit  int
}

var seedQuarters = []Quarter{
	{2023, "Q1", 85000, 23000},
	{2023, "Q2", 88000, 25000},
	{2023, "Q3", 92000, 28000},
	{2023, "Q4", 95000, 29000},
	{2024, "Q1", 98000, 31000},
	{2024, "Q2", 101000, 33000},
}

// OpenFinancialDB opens (creating if necessary) the SQLite file at path.
func OpenFinancialDB(path string) (*FinancialDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open financial database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping financial database: %w", err)
	}
	return &FinancialDB{DB: db}, nil
}

func (f *FinancialDB) Close() error {
	return f.DB.Close()
}

// InitSchema creates the quarterly_financials table. The UNIQUE constraint
// on (year, quarter) is what makes seeding idempotent.
func (f *FinancialDB) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS quarterly_financials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			year INTEGER NOT NULL,
			quarter TEXT NOT NULL,
			revenue_millions INTEGER NOT NULL,
			profit_millions INTEGER NOT NULL,
			UNIQUE(year, quarter)
		);
	`
	if _, err := f.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create quarterly_financials table: %w", err)
	}
	return nil
}

// Seed inserts the known quarterly rows, skipping any that already exist.
// It returns the number of rows actually inserted.
func (f *FinancialDB) Seed(ctx context.Context) (int64, error) {
	var inserted int64
	for _, q := range seedQuarters {
		res, err := f.DB.ExecContext(ctx, `
			INSERT OR IGNORE INTO quarterly_financials (year, quarter, revenue_millions, profit_millions)
			VALUES (?, ?, ?, ?)
		`, q.Year, q.Quarter, q.Revenue, q.Profit)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed quarter %d %s: %w", q.Year, q.Quarter, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// Count returns the number of quarterly rows present.
func (f *FinancialDB) Count(ctx context.Context) (int, error) {
	var count int
	err := f.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM quarterly_financials").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count quarterly rows: %w", err)
	}
	return count, nil
}
