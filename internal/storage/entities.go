package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/model"
)

type entityRow struct {
	createdAt time.Time
	id        string
	name      string
	isDefault bool
}

// accounts, categories, and payees share one table shape; the listing
// and insert paths are generic over the table name, which is always one
// of the three compile-time constants below.
const (
	tableAccounts   = "accounts"
	tableCategories = "categories"
	tablePayees     = "payees"
)

func (s *SQLiteStorage) listEntities(ctx context.Context, table string) ([]entityRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, name, is_default, created_at
		FROM %s
		ORDER BY name`, table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []entityRow
	for rows.Next() {
		var e entityRow
		if err := rows.Scan(&e.id, &e.name, &e.isDefault, &e.createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}

	slog.Debug("retrieved entities", "table", table, "count", len(entities))
	return entities, nil
}

func (s *SQLiteStorage) createEntity(ctx context.Context, table, name string, isDefault bool) (*entityRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	e := entityRow{
		id:        uuid.NewString(),
		name:      name,
		isDefault: isDefault,
		createdAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if isDefault {
		// Only one default per entity kind.
		clear := fmt.Sprintf(`UPDATE %s SET is_default = 0`, table)
		if _, err := tx.ExecContext(ctx, clear); err != nil {
			return nil, fmt.Errorf("failed to clear previous default in %s: %w", table, err)
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, name, is_default, created_at)
		VALUES (?, ?, ?, ?)`, table)
	if _, err := tx.ExecContext(ctx, insert, e.id, e.name, e.isDefault, e.createdAt); err != nil {
		return nil, fmt.Errorf("%w: %s %q", common.ErrDuplicateEntry, table, name)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s insert: %w", table, err)
	}
	return &e, nil
}

// ListAccounts returns all accounts, sorted by name.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.listEntities(ctx, tableAccounts)
	if err != nil {
		return nil, err
	}
	accounts := make([]model.Account, len(rows))
	for i, e := range rows {
		accounts[i] = model.Account{ID: e.id, Name: e.name, IsDefault: e.isDefault, CreatedAt: e.createdAt}
	}
	return accounts, nil
}

// ListCategories returns all categories, sorted by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.listEntities(ctx, tableCategories)
	if err != nil {
		return nil, err
	}
	categories := make([]model.Category, len(rows))
	for i, e := range rows {
		categories[i] = model.Category{ID: e.id, Name: e.name, IsDefault: e.isDefault, CreatedAt: e.createdAt}
	}
	return categories, nil
}

// ListPayees returns all payees, sorted by name.
func (s *SQLiteStorage) ListPayees(ctx context.Context) ([]model.Payee, error) {
	rows, err := s.listEntities(ctx, tablePayees)
	if err != nil {
		return nil, err
	}
	payees := make([]model.Payee, len(rows))
	for i, e := range rows {
		payees[i] = model.Payee{ID: e.id, Name: e.name, IsDefault: e.isDefault, CreatedAt: e.createdAt}
	}
	return payees, nil
}

// CreateAccount adds an account. Marking it default clears any other.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, name string, isDefault bool) (*model.Account, error) {
	e, err := s.createEntity(ctx, tableAccounts, name, isDefault)
	if err != nil {
		return nil, err
	}
	return &model.Account{ID: e.id, Name: e.name, IsDefault: e.isDefault, CreatedAt: e.createdAt}, nil
}

// CreateCategory adds a category. Marking it default clears any other.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, name string, isDefault bool) (*model.Category, error) {
	e, err := s.createEntity(ctx, tableCategories, name, isDefault)
	if err != nil {
		return nil, err
	}
	return &model.Category{ID: e.id, Name: e.name, IsDefault: e.isDefault, CreatedAt: e.createdAt}, nil
}

// CreatePayee adds a payee. Marking it default clears any other.
func (s *SQLiteStorage) CreatePayee(ctx context.Context, name string, isDefault bool) (*model.Payee, error) {
	e, err := s.createEntity(ctx, tablePayees, name, isDefault)
	if err != nil {
		return nil, err
	}
	return &model.Payee{ID: e.id, Name: e.name, IsDefault: e.isDefault, CreatedAt: e.createdAt}, nil
}

// SeedDefaults populates an empty ledger with a starter account and a
// few common categories. Existing data is left alone.
func (s *SQLiteStorage) SeedDefaults(ctx context.Context) error {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}

	if _, err := s.CreateAccount(ctx, "Cash", true); err != nil {
		return err
	}
	for i, name := range []string{"Groceries", "Dining", "Transport", "Household"} {
		if _, err := s.CreateCategory(ctx, name, i == 0); err != nil {
			return err
		}
	}

	slog.Info("seeded default entities")
	return nil
}

// entityExists reports whether an id is present in the given table.
func (s *SQLiteStorage) entityExists(ctx context.Context, table, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table)
	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s id: %w", table, err)
	}
	return true, nil
}
