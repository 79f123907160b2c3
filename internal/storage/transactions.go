package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/model"
)

// amountEpsilon bounds the value match for usage inference. Amounts are
// user-entered money values; anything within half a cent is the same
// amount.
const amountEpsilon = 0.005

// CreateTransaction records a transaction and returns its id. The
// referenced account must exist; an unknown account is a permanent
// failure so a queued replay is not retried pointlessly.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateTransaction(txn); err != nil {
		return "", &common.RetryableError{Err: err, Retryable: false}
	}

	exists, err := s.entityExists(ctx, tableAccounts, txn.AccountID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &common.RetryableError{
			Err:       fmt.Errorf("account %s does not exist", txn.AccountID),
			Retryable: false,
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, value, account_id, category_id, payee_id, date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.Value,
		txn.AccountID,
		nullableID(txn.CategoryID),
		nullableID(txn.PayeeID),
		txn.Date.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}

	slog.Debug("recorded transaction",
		"id", txn.ID,
		"value", txn.Value,
		"account_id", txn.AccountID)
	return txn.ID, nil
}

// GetTransactionByID returns a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, value, account_id, category_id, payee_id, date
		FROM transactions
		WHERE id = ?`, id)

	txn, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions returns the most recent transactions, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value, account_id, category_id, payee_id, date
		FROM transactions
		ORDER BY date DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// LookupMostUsedDetails returns the account/category/payee combination
// most frequently used with the given amount inside the lookback
// window, or nil when no transaction matches.
func (s *SQLiteStorage) LookupMostUsedDetails(ctx context.Context, amount float64, lookbackDays int) (*model.UsageDetails, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if lookbackDays <= 0 {
		lookbackDays = 90
	}

	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, category_id, payee_id, COUNT(*) AS uses
		FROM transactions
		WHERE ABS(value - ?) < ? AND date >= ?
		GROUP BY account_id, category_id, payee_id
		ORDER BY uses DESC, MAX(date) DESC
		LIMIT 1`,
		amount, amountEpsilon, since,
	)

	var (
		details    model.UsageDetails
		categoryID sql.NullString
		payeeID    sql.NullString
	)
	err := row.Scan(&details.AccountID, &categoryID, &payeeID, &details.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query usage details: %w", err)
	}

	if categoryID.Valid {
		details.CategoryID = categoryID.String
	}
	if payeeID.Valid {
		details.PayeeID = payeeID.String
	}

	slog.Debug("usage inference lookup",
		"amount", amount,
		"lookback_days", lookbackDays,
		"count", details.Count)
	return &details, nil
}

func scanTransaction(scan func(dest ...any) error) (*model.Transaction, error) {
	var (
		txn        model.Transaction
		categoryID sql.NullString
		payeeID    sql.NullString
	)
	if err := scan(&txn.ID, &txn.Value, &txn.AccountID, &categoryID, &payeeID, &txn.Date); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		txn.CategoryID = categoryID.String
	}
	if payeeID.Valid {
		txn.PayeeID = payeeID.String
	}
	return &txn, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
