// Package entry coordinates the quick-entry flow: the calculator
// machine supplies the amount, usage inference suggests details, and a
// commit turns the pair into a created transaction. Selection fields
// carry explicit states so defaults, inference, and user choices
// compose predictably.
package entry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennypincher/pennypincher/internal/calc"
	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/infer"
	"github.com/pennypincher/pennypincher/internal/model"
	"github.com/pennypincher/pennypincher/internal/outbox"
	"github.com/pennypincher/pennypincher/internal/service"
)

// FieldState tracks how a selection field got its current value.
type FieldState int

// Selection field states, in order of precedence.
const (
	// FieldUnset means nothing has populated the field yet.
	FieldUnset FieldState = iota
	// FieldDefaulted means the field holds the entity list's default.
	FieldDefaulted
	// FieldInferred means usage inference filled the field; later
	// inferences may overwrite it.
	FieldInferred
	// FieldUserSet means the user chose explicitly; only a reset clears it.
	FieldUserSet
)

func (s FieldState) String() string {
	switch s {
	case FieldUnset:
		return "unset"
	case FieldDefaulted:
		return "defaulted"
	case FieldInferred:
		return "inferred"
	case FieldUserSet:
		return "user-set"
	default:
		return fmt.Sprintf("FieldState(%d)", int(s))
	}
}

// Selection is the current account/category/payee choice for the next
// commit, with the provenance of each field.
type Selection struct {
	AccountID     string
	CategoryID    string
	PayeeID       string
	AccountState  FieldState
	CategoryState FieldState
	PayeeState    FieldState
}

type field struct {
	id        string
	defaultID string
	state     FieldState
}

// set applies a value at the given provenance, respecting precedence:
// inference never displaces a user choice.
func (f *field) set(id string, state FieldState) {
	if f.state == FieldUserSet && state != FieldUserSet {
		return
	}
	f.id = id
	f.state = state
}

// clearInferred drops an inference overlay, falling back to the default.
func (f *field) clearInferred() {
	if f.state != FieldInferred {
		return
	}
	f.id = f.defaultID
	if f.defaultID == "" {
		f.state = FieldUnset
	} else {
		f.state = FieldDefaulted
	}
}

// Config holds the coordinator's tunables.
type Config struct {
	// Now and NewID exist for tests; zero values mean time.Now and uuid.
	Now          func() time.Time
	NewID        func() string
	Debounce     time.Duration
	LookbackDays int
}

// Coordinator owns the selection triple and the commit operation.
type Coordinator struct {
	svc       service.TransactionService
	queue     *outbox.Queue
	machine   *calc.Machine
	debouncer *infer.Debouncer
	onCommit  func(model.Transaction)
	onError   func(error)
	now       func() time.Time
	newID     func() string

	mu         sync.Mutex
	account    field
	category   field
	payee      field
	accounts   []model.Account
	categories []model.Category
	payees     []model.Payee
	loaded     bool
}

// New creates a coordinator. The queue may be nil, in which case failed
// commits are not buffered for replay.
func New(svc service.TransactionService, queue *outbox.Queue, cfg Config) *Coordinator {
	c := &Coordinator{
		svc:     svc,
		queue:   queue,
		machine: calc.New(),
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}

	c.debouncer = infer.New(svc, infer.Config{
		OnResult:     c.applyInference,
		OnError:      c.emitError,
		Debounce:     cfg.Debounce,
		LookbackDays: cfg.LookbackDays,
	})
	return c
}

// OnCommit registers the callback invoked with each created transaction.
func (c *Coordinator) OnCommit(fn func(model.Transaction)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = fn
}

// OnError registers the callback invoked with user-facing errors from
// asynchronous work (inference lookups, failed commits).
func (c *Coordinator) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Close stops the inference debouncer. Late lookup results are dropped.
func (c *Coordinator) Close() {
	c.debouncer.Close()
}

// LoadEntities fetches accounts, categories, and payees and populates
// each still-unset selection field with its default: the entity flagged
// as default, or the first one listed. Defaulting happens at most once
// per field, so reloading never displaces a later choice.
func (c *Coordinator) LoadEntities(ctx context.Context) error {
	accounts, err := c.svc.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	categories, err := c.svc.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	payees, err := c.svc.ListPayees(ctx)
	if err != nil {
		return fmt.Errorf("failed to list payees: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.accounts = accounts
	c.categories = categories
	c.payees = payees
	c.loaded = true

	c.account.defaultID = defaultAccountID(accounts)
	c.category.defaultID = defaultCategoryID(categories)
	c.payee.defaultID = defaultPayeeID(payees)

	c.applyDefaultsLocked()
	return nil
}

func (c *Coordinator) applyDefaultsLocked() {
	if c.account.state == FieldUnset && c.account.defaultID != "" {
		c.account.set(c.account.defaultID, FieldDefaulted)
	}
	if c.category.state == FieldUnset && c.category.defaultID != "" {
		c.category.set(c.category.defaultID, FieldDefaulted)
	}
	if c.payee.state == FieldUnset && c.payee.defaultID != "" {
		c.payee.set(c.payee.defaultID, FieldDefaulted)
	}
}

// SetAccount records an explicit user choice for the account field.
func (c *Coordinator) SetAccount(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account.set(id, FieldUserSet)
}

// SetCategory records an explicit user choice for the category field.
func (c *Coordinator) SetCategory(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.category.set(id, FieldUserSet)
}

// SetPayee records an explicit user choice for the payee field.
func (c *Coordinator) SetPayee(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payee.set(id, FieldUserSet)
}

// Selection returns the current triple and field provenance.
func (c *Coordinator) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Selection{
		AccountID:     c.account.id,
		CategoryID:    c.category.id,
		PayeeID:       c.payee.id,
		AccountState:  c.account.state,
		CategoryState: c.category.state,
		PayeeState:    c.payee.state,
	}
}

// applyInference consumes a debounced lookup result. Inferred ids are
// applied only when they belong to the loaded entity sets and the field
// has not been user-set. An empty result removes inference overlays.
func (c *Coordinator) applyInference(details model.UsageDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if details.Empty() {
		c.account.clearInferred()
		c.category.clearInferred()
		c.payee.clearInferred()
		return
	}

	if details.AccountID != "" && hasAccount(c.accounts, details.AccountID) {
		c.account.set(details.AccountID, FieldInferred)
	}
	if details.CategoryID != "" && hasCategory(c.categories, details.CategoryID) {
		c.category.set(details.CategoryID, FieldInferred)
	}
	if details.PayeeID != "" && hasPayee(c.payees, details.PayeeID) {
		c.payee.set(details.PayeeID, FieldInferred)
	}
}

func (c *Coordinator) emitError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Machine exposes the underlying calculator, read-only use only; entry
// events must go through the coordinator so inference sees them.
func (c *Coordinator) Machine() *calc.Machine {
	return c.machine
}

// Display returns the calculator display string.
func (c *Coordinator) Display() string {
	return c.machine.Display()
}

// EffectiveAmount returns the value the entry currently represents.
func (c *Coordinator) EffectiveAmount() decimal.Decimal {
	return c.machine.EffectiveAmount()
}

// Digit feeds a digit press into the machine.
func (c *Coordinator) Digit(d rune) error {
	if err := c.machine.EnterDigit(d); err != nil {
		return err
	}
	c.amountChanged()
	return nil
}

// Operator feeds an operator press into the machine.
func (c *Coordinator) Operator(op calc.Op) error {
	if err := c.machine.EnterOperator(op); err != nil {
		return err
	}
	c.amountChanged()
	return nil
}

// Backspace feeds a backspace press into the machine.
func (c *Coordinator) Backspace() {
	c.machine.Backspace()
	c.amountChanged()
}

// Equals evaluates the pending operation.
func (c *Coordinator) Equals() (decimal.Decimal, error) {
	result, err := c.machine.Equals()
	if err != nil {
		return result, err
	}
	c.amountChanged()
	return result, nil
}

// SetAmount replaces the current operand, as from a quick-select chip.
func (c *Coordinator) SetAmount(v string) error {
	if err := c.machine.SetValue(v); err != nil {
		return err
	}
	c.amountChanged()
	return nil
}

// ClearEntry resets the calculator without touching selections.
func (c *Coordinator) ClearEntry() {
	c.machine.Reset()
	c.amountChanged()
}

func (c *Coordinator) amountChanged() {
	c.debouncer.Submit(c.machine.EffectiveFloat())
}

// Commit creates a transaction from the current amount and selections.
// The account falls back to the default when unselected; category and
// payee may be empty. On success the calculator clears, selections
// reset to their defaults, and the commit callback fires. On remote
// failure the mutation is parked in the outbox for later replay and the
// error is surfaced.
func (c *Coordinator) Commit(ctx context.Context) (*model.Transaction, error) {
	amount := c.machine.EffectiveAmount()

	c.mu.Lock()
	accountID := c.account.id
	if accountID == "" {
		accountID = c.account.defaultID
	}
	txn := model.Transaction{
		ID:         c.newID(),
		Value:      amount.InexactFloat64(),
		AccountID:  accountID,
		CategoryID: c.category.id,
		PayeeID:    c.payee.id,
		Date:       c.now(),
	}
	c.mu.Unlock()

	if txn.AccountID == "" {
		err := common.NewUserError("select an account first", common.ErrMissingAccount)
		c.emitError(err)
		return nil, err
	}

	createdID, err := c.svc.CreateTransaction(ctx, &txn)
	if err != nil {
		c.parkFailedCommit(ctx, txn)
		uerr := common.NewUserError("failed to record transaction", err)
		c.emitError(uerr)
		return nil, uerr
	}
	if createdID != "" {
		txn.ID = createdID
	}

	c.resetAfterCommit()

	c.mu.Lock()
	fn := c.onCommit
	c.mu.Unlock()
	if fn != nil {
		fn(txn)
	}
	return &txn, nil
}

// parkFailedCommit buffers a failed creation in the outbox so it can
// replay once connectivity returns.
func (c *Coordinator) parkFailedCommit(ctx context.Context, txn model.Transaction) {
	if c.queue == nil {
		return
	}
	if _, err := c.queue.Enqueue(ctx, MutationCreateTransaction, transactionVariables(txn)); err != nil {
		common.LogError(err, "failed to park transaction in outbox", common.Fields{
			"transaction_id": txn.ID,
		})
	}
}

// resetAfterCommit clears the form: calculator back to "0", selection
// fields back to their defaults, inference cleared.
func (c *Coordinator) resetAfterCommit() {
	c.machine.Reset()

	c.mu.Lock()
	c.account = field{defaultID: c.account.defaultID}
	c.category = field{defaultID: c.category.defaultID}
	c.payee = field{defaultID: c.payee.defaultID}
	c.applyDefaultsLocked()
	c.mu.Unlock()

	c.debouncer.Submit(0)
}

func defaultAccountID(accounts []model.Account) string {
	for _, a := range accounts {
		if a.IsDefault {
			return a.ID
		}
	}
	if len(accounts) > 0 {
		return accounts[0].ID
	}
	return ""
}

func defaultCategoryID(categories []model.Category) string {
	for _, cat := range categories {
		if cat.IsDefault {
			return cat.ID
		}
	}
	if len(categories) > 0 {
		return categories[0].ID
	}
	return ""
}

func defaultPayeeID(payees []model.Payee) string {
	for _, p := range payees {
		if p.IsDefault {
			return p.ID
		}
	}
	if len(payees) > 0 {
		return payees[0].ID
	}
	return ""
}

func hasAccount(accounts []model.Account, id string) bool {
	for _, a := range accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func hasCategory(categories []model.Category, id string) bool {
	for _, cat := range categories {
		if cat.ID == id {
			return true
		}
	}
	return false
}

func hasPayee(payees []model.Payee, id string) bool {
	for _, p := range payees {
		if p.ID == id {
			return true
		}
	}
	return false
}
