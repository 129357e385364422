package store

import (
	"context"
	"errors"
	"fmt"
)

// The statements are portable between SQLite and PostgreSQL. Timestamps are
// unix milliseconds and amounts are decimal strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		processed_at BIGINT,
		error_message TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status_created ON transactions(status, created_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
