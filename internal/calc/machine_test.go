package calc

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypincher/pennypincher/internal/common"
)

// press runs a sequence of button presses against the machine. Digits
// and "." are entered as digits, "+-*/" as operators, "=" as equals,
// "<" as backspace.
func press(t *testing.T, m *Machine, keys string) {
	t.Helper()
	for _, k := range keys {
		switch k {
		case '+', '-', '*', '/':
			_ = m.EnterOperator(Op(k))
		case '=':
			_, _ = m.Equals()
		case '<':
			m.Backspace()
		case ' ':
		default:
			require.NoError(t, m.EnterDigit(k))
		}
	}
}

func TestMachine_DigitEntry(t *testing.T) {
	tests := []struct {
		name        string
		keys        string
		wantDisplay string
	}{
		{name: "initial zero", keys: "", wantDisplay: "0"},
		{name: "single digit replaces leading zero", keys: "7", wantDisplay: "7"},
		{name: "multi digit", keys: "123", wantDisplay: "123"},
		{name: "decimal entry keeps trailing zero", keys: "1.50", wantDisplay: "1.50"},
		{name: "second decimal point ignored", keys: "1.5.2", wantDisplay: "1.52"},
		{name: "leading decimal point", keys: ".5", wantDisplay: "0.5"},
		{name: "zero then decimal", keys: "0.25", wantDisplay: "0.25"},
		{name: "zero repeated", keys: "00", wantDisplay: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			press(t, m, tt.keys)
			assert.Equal(t, tt.wantDisplay, m.Display())
		})
	}
}

func TestMachine_DigitEntryParsesToEnteredValue(t *testing.T) {
	m := New()
	press(t, m, "1.50")

	require.Equal(t, "1.50", m.Display())
	assert.True(t, m.EffectiveAmount().Equal(decimal.RequireFromString("1.5")))
}

func TestMachine_RejectsNonDigit(t *testing.T) {
	m := New()
	err := m.EnterDigit('x')
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInputRejected)
	assert.Equal(t, "0", m.Display())
}

func TestMachine_ChainedOperationsAreLeftAssociative(t *testing.T) {
	tests := []struct {
		name string
		keys string
		want string
	}{
		{name: "no precedence", keys: "2+3*4=", want: "20"},
		{name: "subtract then divide", keys: "10-2/4=", want: "2"},
		{name: "single pending op", keys: "2+3=", want: "5"},
		{name: "operator replaced before operand", keys: "6+*7=", want: "42"},
		{name: "decimal operands", keys: "1.5+2.25=", want: "3.75"},
		{name: "equals without pending op", keys: "9=", want: "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			press(t, m, tt.keys)
			got := m.EffectiveAmount()
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
			assert.Equal(t, tt.want, m.Display())
		})
	}
}

func TestMachine_MidChainEvaluationUpdatesDisplay(t *testing.T) {
	m := New()
	press(t, m, "2+3")
	require.NoError(t, m.EnterOperator(OpMultiply))

	// The running result becomes the left operand.
	snap := m.Snapshot()
	assert.Equal(t, "5", snap.Display)
	assert.Equal(t, "5", snap.Previous)
	assert.Equal(t, OpMultiply, snap.Operation)
	assert.True(t, snap.Waiting)
}

func TestMachine_DivisionByZeroRejected(t *testing.T) {
	t.Run("at equals", func(t *testing.T) {
		m := New()
		press(t, m, "8/0")

		before := m.Snapshot()
		result, err := m.Equals()
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInputRejected)
		assert.True(t, result.IsZero())
		assert.Equal(t, before, m.Snapshot(), "state must be unchanged on rejection")
	})

	t.Run("mid chain", func(t *testing.T) {
		m := New()
		press(t, m, "8/0")

		before := m.Snapshot()
		err := m.EnterOperator(OpAdd)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInputRejected)
		assert.Equal(t, before, m.Snapshot(), "state must be unchanged on rejection")
	})
}

func TestMachine_BackspaceDeletesOperator(t *testing.T) {
	entered := New()
	press(t, entered, "5")

	m := New()
	press(t, m, "5+<")

	assert.Equal(t, entered.Snapshot(), m.Snapshot())
}

func TestMachine_BackspaceOnOperand(t *testing.T) {
	tests := []struct {
		name string
		keys string
		want Snapshot
	}{
		{
			name: "drops last character",
			keys: "123<",
			want: Snapshot{Display: "12"},
		},
		{
			name: "emptied operand without operator resets to zero",
			keys: "7<",
			want: Snapshot{Display: "0"},
		},
		{
			name: "emptied right operand with operator stays blank",
			keys: "5+2<",
			want: Snapshot{Display: "", Previous: "5", Operation: OpAdd, HasPending: true},
		},
		{
			name: "backspace on blank operand deletes operator",
			keys: "5+2<<",
			want: Snapshot{Display: "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			press(t, m, tt.keys)
			assert.Equal(t, tt.want, m.Snapshot())
		})
	}
}

func TestMachine_SetValue(t *testing.T) {
	m := New()
	press(t, m, "5+")

	require.NoError(t, m.SetValue("42.50"))

	snap := m.Snapshot()
	assert.Equal(t, "42.50", snap.Display)
	assert.True(t, snap.HasPending, "pending operation is preserved")
	assert.False(t, snap.Waiting)

	result, err := m.Equals()
	require.NoError(t, err)
	assert.True(t, result.Equal(decimal.RequireFromString("47.5")))
}

func TestMachine_SetValueRejectsGarbage(t *testing.T) {
	m := New()
	err := m.SetValue("not-a-number")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInputRejected))
	assert.Equal(t, "0", m.Display())
}

func TestMachine_EffectiveAmount(t *testing.T) {
	tests := []struct {
		name string
		keys string
		want string
	}{
		{name: "plain operand", keys: "42.50", want: "42.5"},
		{name: "pending op with no right operand", keys: "5+", want: "5"},
		{name: "pending op with right operand", keys: "5+3", want: "8"},
		{name: "blank right operand", keys: "5+3<", want: "5"},
		{name: "rejected division falls back to left operand", keys: "6/0", want: "6"},
		{name: "fresh machine", keys: "", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			press(t, m, tt.keys)

			before := m.Snapshot()
			got := m.EffectiveAmount()
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
			assert.Equal(t, before, m.Snapshot(), "EffectiveAmount must not mutate state")
		})
	}
}

func TestMachine_DigitAfterEqualsStartsFresh(t *testing.T) {
	m := New()
	press(t, m, "2+3=7")
	assert.Equal(t, "7", m.Display())
}

func TestMachine_Reset(t *testing.T) {
	m := New()
	press(t, m, "12+34")
	m.Reset()
	assert.Equal(t, Snapshot{Display: "0"}, m.Snapshot())
}
