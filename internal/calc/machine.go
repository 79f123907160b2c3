// Package calc implements the calculator-style quick-entry state machine.
//
// The machine models chained arithmetic entry the way a physical
// calculator does: one pending binary operation at a time, evaluated
// strictly left-to-right with no precedence. Operand math uses
// shopspring/decimal so that entered amounts round-trip exactly.
package calc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pennypincher/pennypincher/internal/common"
)

// Op is a pending binary operation.
type Op string

// Supported operations.
const (
	OpAdd      Op = "+"
	OpSubtract Op = "-"
	OpMultiply Op = "*"
	OpDivide   Op = "/"
)

func validOp(op Op) bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time copy of the machine state, for rendering
// and for comparing states in tests.
type Snapshot struct {
	Display    string
	Previous   string
	Operation  Op
	HasPending bool
	Waiting    bool
}

// Machine holds the current entry state. Safe for concurrent use.
//
// Invariant: op is set iff hasPrev is true; the two are always set and
// cleared together.
type Machine struct {
	display string
	op      Op
	prev    decimal.Decimal
	mu      sync.Mutex
	hasPrev bool
	// waiting means the next digit starts a fresh operand instead of
	// appending. Set after an operator or equals.
	waiting bool
}

// New returns a machine showing "0" with no pending operation.
func New() *Machine {
	return &Machine{display: "0"}
}

// Reset returns the machine to its initial state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.display = "0"
	m.prev = decimal.Decimal{}
	m.hasPrev = false
	m.op = ""
	m.waiting = false
}

// EnterDigit appends a digit or decimal point to the current operand.
// A second decimal point in the same operand is ignored. A lone leading
// "0" is replaced rather than extended.
func (m *Machine) EnterDigit(d rune) error {
	if (d < '0' || d > '9') && d != '.' {
		return fmt.Errorf("%w: invalid digit %q", common.ErrInputRejected, d)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waiting {
		if d == '.' {
			m.display = "0."
		} else {
			m.display = string(d)
		}
		m.waiting = false
		return nil
	}

	if d == '.' {
		if strings.ContainsRune(m.display, '.') {
			return nil
		}
		if m.display == "" {
			m.display = "0."
		} else {
			m.display += "."
		}
		return nil
	}

	if m.display == "0" {
		m.display = string(d)
		return nil
	}
	m.display += string(d)
	return nil
}

// EnterOperator records a pending binary operation. If an operation is
// already pending and a right operand has been entered, the pending
// operation is evaluated first and its result becomes the new left
// operand, so chained entry evaluates strictly in entry order. Division
// by zero is rejected with the state unchanged.
func (m *Machine) EnterOperator(op Op) error {
	if !validOp(op) {
		return fmt.Errorf("%w: invalid operator %q", common.ErrInputRejected, op)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasPrev {
		v, err := parseOperand(m.display)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrInputRejected, err)
		}
		m.prev = v
		m.hasPrev = true
		m.op = op
		m.waiting = true
		return nil
	}

	// No right operand yet: the new operator replaces the old one.
	if m.waiting || m.display == "" {
		m.op = op
		return nil
	}

	right, err := parseOperand(m.display)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInputRejected, err)
	}
	result, err := evaluate(m.prev, right, m.op)
	if err != nil {
		return err
	}

	m.prev = result
	m.display = result.String()
	m.op = op
	m.waiting = true
	return nil
}

// Backspace removes the last entered character. With a pending operator
// and no right operand, it deletes the operator instead, restoring the
// previous operand as the display. Without a pending operator an emptied
// display collapses to "0"; with one it stays empty so the caller can
// render the pending operation with a blank right side.
func (m *Machine) Backspace() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasPrev && (m.waiting || m.display == "") {
		m.display = m.prev.String()
		m.prev = decimal.Decimal{}
		m.hasPrev = false
		m.op = ""
		m.waiting = false
		return
	}

	if m.display != "" {
		m.display = m.display[:len(m.display)-1]
	}
	if m.display == "" || m.display == "-" {
		if m.hasPrev {
			m.display = ""
		} else {
			m.display = "0"
		}
	}
}

// Equals evaluates the pending operation. On success the result becomes
// the display and the pending operation is cleared; the next digit then
// starts a fresh operand. On rejection (unparseable operand, division by
// zero) the state is unchanged and an error wrapping ErrInputRejected is
// returned. With nothing pending it returns the current operand value.
func (m *Machine) Equals() (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasPrev {
		v, err := parseOperand(m.display)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %v", common.ErrInputRejected, err)
		}
		return v, nil
	}

	right, err := parseOperand(m.display)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", common.ErrInputRejected, err)
	}
	result, err := evaluate(m.prev, right, m.op)
	if err != nil {
		return decimal.Decimal{}, err
	}

	m.display = result.String()
	m.prev = decimal.Decimal{}
	m.hasPrev = false
	m.op = ""
	m.waiting = true
	return result, nil
}

// SetValue replaces the current operand with an externally supplied
// value, such as a most-used-amount quick-select. The pending operation,
// if any, is preserved.
func (m *Machine) SetValue(v string) error {
	if _, err := parseOperand(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInputRejected, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.display = v
	m.waiting = false
	return nil
}

// Display returns the textual representation of the current operand.
func (m *Machine) Display() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.display
}

// Snapshot returns a copy of the full machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Display:    m.display,
		Operation:  m.op,
		HasPending: m.hasPrev,
		Waiting:    m.waiting,
	}
	if m.hasPrev {
		snap.Previous = m.prev.String()
	}
	return snap
}

// EffectiveAmount computes the value the entry currently represents
// without mutating state: the pending operation applied to both operands
// when a right operand exists, otherwise the single operand on hand. A
// rejected evaluation falls back to the left operand.
func (m *Machine) EffectiveAmount() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	right, rerr := parseOperand(m.display)

	if m.hasPrev {
		if !m.waiting && rerr == nil {
			if result, err := evaluate(m.prev, right, m.op); err == nil {
				return result
			}
		}
		return m.prev
	}

	if rerr == nil {
		return right
	}
	return decimal.Zero
}

// EffectiveFloat is EffectiveAmount converted for callers that speak
// float64, such as the inference lookup.
func (m *Machine) EffectiveFloat() float64 {
	return m.EffectiveAmount().InexactFloat64()
}

// parseOperand converts a display string to a decimal. A trailing
// decimal point, a transient state while the user types, parses as the
// integer part. An empty display has no value.
func parseOperand(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty operand")
	}
	return decimal.NewFromString(s)
}

// evaluate applies op to a and b. Division by zero is rejected for every
// call site; mid-chain and final evaluation share one policy.
func evaluate(a, b decimal.Decimal, op Op) (decimal.Decimal, error) {
	switch op {
	case OpAdd:
		return a.Add(b), nil
	case OpSubtract:
		return a.Sub(b), nil
	case OpMultiply:
		return a.Mul(b), nil
	case OpDivide:
		if b.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("%w: division by zero", common.ErrInputRejected)
		}
		return a.Div(b), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: invalid operator %q", common.ErrInputRejected, op)
	}
}
