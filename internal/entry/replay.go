package entry

import (
	"context"
	"fmt"
	"time"

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/model"
	"github.com/pennypincher/pennypincher/internal/outbox"
	"github.com/pennypincher/pennypincher/internal/service"
)

// MutationCreateTransaction names the create-transaction operation in
// queued mutations.
const MutationCreateTransaction = "createTransaction"

// transactionVariables builds the replayable argument map for a
// create-transaction call. The payee id is included only when set;
// the category id is carried as null when empty.
func transactionVariables(txn model.Transaction) map[string]any {
	variables := map[string]any{
		"id":        txn.ID,
		"value":     txn.Value,
		"accountId": txn.AccountID,
		"date":      txn.Date.UTC().Format(time.RFC3339Nano),
	}
	if txn.CategoryID != "" {
		variables["categoryId"] = txn.CategoryID
	} else {
		variables["categoryId"] = nil
	}
	if txn.PayeeID != "" {
		variables["payeeId"] = txn.PayeeID
	}
	return variables
}

// NewReplayer returns the outbox replay hook for mutations parked by
// the coordinator. Unknown mutation names and undecodable variables are
// permanent failures; the remote call's own errors stay transient so
// the retry budget governs them.
func NewReplayer(svc service.TransactionService) outbox.ReplayFunc {
	return func(ctx context.Context, m outbox.QueuedEntry) error {
		switch m.Mutation {
		case MutationCreateTransaction:
			txn, err := decodeTransaction(m.Variables)
			if err != nil {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			if _, err := svc.CreateTransaction(ctx, txn); err != nil {
				return err
			}
			return nil
		default:
			return &common.RetryableError{
				Err:       fmt.Errorf("unknown queued mutation %q", m.Mutation),
				Retryable: false,
			}
		}
	}
}

func decodeTransaction(variables map[string]any) (*model.Transaction, error) {
	txn := &model.Transaction{}

	id, ok := variables["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("queued transaction missing id")
	}
	txn.ID = id

	value, ok := variables["value"].(float64)
	if !ok {
		return nil, fmt.Errorf("queued transaction missing value")
	}
	txn.Value = value

	accountID, ok := variables["accountId"].(string)
	if !ok || accountID == "" {
		return nil, fmt.Errorf("queued transaction missing account id")
	}
	txn.AccountID = accountID

	if categoryID, ok := variables["categoryId"].(string); ok {
		txn.CategoryID = categoryID
	}
	if payeeID, ok := variables["payeeId"].(string); ok {
		txn.PayeeID = payeeID
	}

	rawDate, ok := variables["date"].(string)
	if !ok {
		return nil, fmt.Errorf("queued transaction missing date")
	}
	date, err := time.Parse(time.RFC3339Nano, rawDate)
	if err != nil {
		return nil, fmt.Errorf("queued transaction has invalid date: %w", err)
	}
	txn.Date = date

	return txn, nil
}
