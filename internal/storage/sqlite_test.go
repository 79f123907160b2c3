package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/model"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func recordTransaction(t *testing.T, s *SQLiteStorage, value float64, accountID, categoryID, payeeID string, age time.Duration) {
	t.Helper()
	_, err := s.CreateTransaction(context.Background(), &model.Transaction{
		ID:         uuid.NewString(),
		Value:      value,
		AccountID:  accountID,
		CategoryID: categoryID,
		PayeeID:    payeeID,
		Date:       time.Now().UTC().Add(-age),
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_MigrateIsIdempotent(t *testing.T) {
	store := createTestStorage(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestSQLiteStorage_EntityRoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	checking, err := store.CreateAccount(ctx, "Checking", true)
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, "Savings", false)
	require.NoError(t, err)

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.True(t, accounts[0].IsDefault)
	assert.Equal(t, checking.ID, accounts[0].ID)

	_, err = store.CreateCategory(ctx, "Groceries", false)
	require.NoError(t, err)
	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.False(t, categories[0].IsDefault)

	payees, err := store.ListPayees(ctx)
	require.NoError(t, err)
	assert.Empty(t, payees)
}

func TestSQLiteStorage_NewDefaultDisplacesOld(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first, err := store.CreateAccount(ctx, "First", true)
	require.NoError(t, err)
	second, err := store.CreateAccount(ctx, "Second", true)
	require.NoError(t, err)

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)

	defaults := map[string]bool{}
	for _, a := range accounts {
		defaults[a.ID] = a.IsDefault
	}
	assert.False(t, defaults[first.ID])
	assert.True(t, defaults[second.ID])
}

func TestSQLiteStorage_DuplicateEntityName(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.CreateAccount(ctx, "Checking", false)
	require.NoError(t, err)

	_, err = store.CreateAccount(ctx, "Checking", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestSQLiteStorage_SeedDefaultsOnlyOnEmptyLedger(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SeedDefaults(ctx))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsDefault)

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 4)

	// Seeding again must not duplicate anything.
	require.NoError(t, store.SeedDefaults(ctx))
	accounts, err = store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSQLiteStorage_CreateTransaction(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "Checking", true)
	require.NoError(t, err)

	txn := &model.Transaction{
		ID:        "txn-1",
		Value:     42.5,
		AccountID: account.ID,
		Date:      time.Now().UTC(),
	}
	id, err := store.CreateTransaction(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", id)

	loaded, err := store.GetTransactionByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, loaded.Value)
	assert.Equal(t, account.ID, loaded.AccountID)
	assert.Empty(t, loaded.CategoryID, "empty category stored as NULL round-trips empty")
	assert.Empty(t, loaded.PayeeID)
}

func TestSQLiteStorage_CreateTransactionUnknownAccountIsPermanent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.CreateTransaction(ctx, &model.Transaction{
		ID:        "txn-1",
		Value:     10,
		AccountID: "ghost",
		Date:      time.Now().UTC(),
	})
	require.Error(t, err)

	var retryable *common.RetryableError
	require.True(t, errors.As(err, &retryable))
	assert.False(t, retryable.Retryable)
}

func TestSQLiteStorage_ListTransactionsNewestFirst(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "Checking", true)
	require.NoError(t, err)

	recordTransaction(t, store, 1, account.ID, "", "", 3*time.Hour)
	recordTransaction(t, store, 2, account.ID, "", "", 2*time.Hour)
	recordTransaction(t, store, 3, account.ID, "", "", time.Hour)

	transactions, err := store.ListTransactions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, 3.0, transactions[0].Value)
	assert.Equal(t, 2.0, transactions[1].Value)
}

func TestSQLiteStorage_LookupMostUsedDetails(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "Checking", true)
	require.NoError(t, err)
	groceries, err := store.CreateCategory(ctx, "Groceries", false)
	require.NoError(t, err)
	dining, err := store.CreateCategory(ctx, "Dining", false)
	require.NoError(t, err)
	corner, err := store.CreatePayee(ctx, "Corner Store", false)
	require.NoError(t, err)

	// 12.50 shows up three times as groceries at the corner store and
	// once as dining; the frequent combination wins.
	for range 3 {
		recordTransaction(t, store, 12.50, account.ID, groceries.ID, corner.ID, 24*time.Hour)
	}
	recordTransaction(t, store, 12.50, account.ID, dining.ID, "", 24*time.Hour)

	details, err := store.LookupMostUsedDetails(ctx, 12.50, 90)
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, account.ID, details.AccountID)
	assert.Equal(t, groceries.ID, details.CategoryID)
	assert.Equal(t, corner.ID, details.PayeeID)
	assert.Equal(t, 3, details.Count)
}

func TestSQLiteStorage_LookupRespectsLookbackWindow(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "Checking", true)
	require.NoError(t, err)

	recordTransaction(t, store, 30, account.ID, "", "", 120*24*time.Hour)

	details, err := store.LookupMostUsedDetails(ctx, 30, 90)
	require.NoError(t, err)
	assert.Nil(t, details, "transactions outside the window do not inform inference")

	details, err = store.LookupMostUsedDetails(ctx, 30, 365)
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, 1, details.Count)
}

func TestSQLiteStorage_LookupMatchesWithinEpsilon(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "Checking", true)
	require.NoError(t, err)
	recordTransaction(t, store, 9.99, account.ID, "", "", time.Hour)

	details, err := store.LookupMostUsedDetails(ctx, 9.99, 90)
	require.NoError(t, err)
	require.NotNil(t, details)

	details, err = store.LookupMostUsedDetails(ctx, 10.00, 90)
	require.NoError(t, err)
	assert.Nil(t, details, "a cent apart is a different amount")
}

func TestSQLiteStorage_LookupRejectsInvalidAmounts(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.LookupMostUsedDetails(ctx, 0, 90)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = store.LookupMostUsedDetails(ctx, -5, 90)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSQLiteStorage_Probe(t *testing.T) {
	store := createTestStorage(t)
	assert.True(t, store.Probe(context.Background()))
	require.NoError(t, store.Close())
	assert.False(t, store.Probe(context.Background()))
}
