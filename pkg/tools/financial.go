package tools

import (
	"context"
	"fmt"
	"strings"

	lctools "github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/sqldatabase"
	_ "github.com/tmc/langchaingo/tools/sqldatabase/sqlite3"
)

// FinancialTool lets the agent run SQL against the quarterly financials
// database. The model writes the query itself; the description carries the
// schema so it does not have to guess column names.
type FinancialTool struct {
	db *sqldatabase.SQLDatabase
}

var _ lctools.Tool = (*FinancialTool)(nil)

func NewFinancialTool(dbPath string) (*FinancialTool, error) {
	db, err := sqldatabase.NewSQLDatabaseWithDSN("sqlite3", dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open financials database: %w", err)
	}
	return &FinancialTool{db: db}, nil
}

func (t *FinancialTool) Name() string {
	return "sql_database_query"
}

func (t *FinancialTool) Description() string {
	return "Executes a SQL query against a database of quarterly company financials. " +
		"The database has a single table named quarterly_financials with columns: year (INTEGER), quarter (TEXT, e.g. 'Q1'), revenue_millions (INTEGER), profit_millions (INTEGER). " +
		"Use this for questions about exact quarterly revenue or profit figures. The input must be a valid SQLite query. " +
		"Example: SELECT SUM(profit_millions) FROM quarterly_financials WHERE year = 2023"
}

func (t *FinancialTool) Call(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("empty SQL query")
	}
	result, err := t.db.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	return result, nil
}

func (t *FinancialTool) Close() error {
	return t.db.Close()
}
