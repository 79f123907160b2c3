// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/pennypincher/pennypincher/internal/model"
)

// TransactionService is the remote collaborator the quick-entry core
// talks to. The CLI backs it with local SQLite storage; an application
// embedding the core would back it with its API client.
type TransactionService interface {
	// CreateTransaction records a transaction and returns its id.
	CreateTransaction(ctx context.Context, txn *model.Transaction) (string, error)

	// Entity listings used to populate and validate selections.
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListPayees(ctx context.Context) ([]model.Payee, error)

	// LookupMostUsedDetails returns the most frequent account/category/payee
	// combination for transactions of the given amount within the lookback
	// window, or nil when no historical transaction matches.
	LookupMostUsedDetails(ctx context.Context, amount float64, lookbackDays int) (*model.UsageDetails, error)
}

// UsageLookup is the narrow slice of TransactionService the inference
// debouncer needs.
type UsageLookup interface {
	LookupMostUsedDetails(ctx context.Context, amount float64, lookbackDays int) (*model.UsageDetails, error)
}

// Prober reports whether the remote side is currently reachable. The
// outbox manager cross-checks it on a timer in case connectivity
// transition events are missed.
type Prober interface {
	Probe(ctx context.Context) bool
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
