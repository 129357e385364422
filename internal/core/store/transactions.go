package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlasdao/painel-sub005/internal/core"
)

const transactionColumns = `id, type, status, amount, created_at, processed_at, error_message`

// InsertTransaction stores a new transaction.
func (s *Store) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(tx.ID) == "" {
		return errors.New("transaction id is required")
	}
	if _, err := core.ParseTransactionStatus(string(tx.Status)); err != nil {
		return err
	}

	var processedAt sql.NullInt64
	if tx.ProcessedAt != nil {
		processedAt = sql.NullInt64{Int64: tx.ProcessedAt.UnixMilli(), Valid: true}
	}
	var errorMessage sql.NullString
	if tx.ErrorMessage != "" {
		errorMessage = sql.NullString{String: tx.ErrorMessage, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), tx.ID, string(tx.Type), string(tx.Status), tx.Amount.String(), tx.CreatedAt.UnixMilli(), processedAt, errorMessage)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

// GetTransaction returns a transaction by id, or nil when it does not exist.
func (s *Store) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, s.rebind(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ?
	`), strings.TrimSpace(id))

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	return tx, nil
}

// CountPending counts PENDING transactions inside filter.
func (s *Store) CountPending(ctx context.Context, filter core.PendingFilter) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	query := `SELECT COUNT(*) FROM transactions WHERE status = ?`
	args := []any{string(core.StatusPending)}
	if !filter.CreatedBefore.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.CreatedBefore.UnixMilli())
	}
	if !filter.CreatedAtOrAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAtOrAfter.UnixMilli())
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending transactions: %w", err)
	}
	return count, nil
}

// CountByStatus counts transactions in status.
func (s *Store) CountByStatus(ctx context.Context, status core.TransactionStatus) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	var count int
	err := s.DB.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM transactions WHERE status = ?`), string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s transactions: %w", status, err)
	}
	return count, nil
}

// FindPendingOlderThan lists up to limit PENDING transactions created before cutoff, oldest first.
func (s *Store) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]core.Transaction, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`), string(core.StatusPending), cutoff.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return out, nil
}

// ExpirePendingOlderThan moves every PENDING transaction created before cutoff
// to EXPIRED in one conditional statement and returns how many rows changed.
// A row already moved by a concurrent sweep no longer matches the WHERE clause.
func (s *Store) ExpirePendingOlderThan(ctx context.Context, cutoff time.Time, reason string, now time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	result, err := s.DB.ExecContext(ctx, s.rebind(`
		UPDATE transactions
		SET status = ?, error_message = ?, processed_at = ?
		WHERE status = ? AND created_at < ?
	`), string(core.StatusExpired), reason, now.UnixMilli(), string(core.StatusPending), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("expire pending transactions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending transactions: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		tx           core.Transaction
		txType       string
		status       string
		amount       string
		createdAt    int64
		processedAt  sql.NullInt64
		errorMessage sql.NullString
	)
	if err := row.Scan(&tx.ID, &txType, &status, &amount, &createdAt, &processedAt, &errorMessage); err != nil {
		return nil, err
	}

	parsedStatus, err := core.ParseTransactionStatus(status)
	if err != nil {
		return nil, err
	}
	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}

	tx.Type = core.TransactionType(txType)
	tx.Status = parsedStatus
	tx.Amount = parsedAmount
	tx.CreatedAt = time.UnixMilli(createdAt).UTC()
	if processedAt.Valid {
		value := time.UnixMilli(processedAt.Int64).UTC()
		tx.ProcessedAt = &value
	}
	if errorMessage.Valid {
		tx.ErrorMessage = errorMessage.String
	}
	return &tx, nil
}
