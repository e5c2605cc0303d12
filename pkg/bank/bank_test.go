package bank

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

func TestCreditAndTransfer(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Credit("floor", big.NewInt(100)))
	require.NoError(t, b.Transfer("floor", "alice", big.NewInt(40)))

	assert.Equal(t, "60", b.BalanceOf("floor").String())
	assert.Equal(t, "40", b.BalanceOf("alice").String())
	assert.Equal(t, "100", b.Supply().String())
	assert.Equal(t, []string{"alice", "floor"}, b.Accounts())

	require.NoError(t, b.Transfer("floor", "alice", big.NewInt(60)))
	assert.Equal(t, []string{"alice"}, b.Accounts(), "drained accounts are dropped")
	require.NoError(t, b.Transfer("floor", "alice", big.NewInt(0)), "zero is a no-op")
}

func TestFailuresLeaveBalances(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Credit("a", big.NewInt(5)))

	tests := []struct {
		name string
		err  error
		run  func() error
	}{
		{"overdraw", errs.ErrInsufficientBalance, func() error { return b.Transfer("a", "b", big.NewInt(6)) }},
		{"negative", errs.ErrInsufficientAmount, func() error { return b.Transfer("a", "b", big.NewInt(-1)) }},
		{"no receiver", errs.ErrInvalidArgument, func() error { return b.Transfer("a", "", big.NewInt(1)) }},
		{"zero credit", errs.ErrInsufficientAmount, func() error { return b.Credit("a", big.NewInt(0)) }},
		{"credit nobody", errs.ErrInvalidArgument, func() error { return b.Credit("", big.NewInt(1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.run(), tt.err)
			assert.Equal(t, "5", b.BalanceOf("a").String())
			assert.Equal(t, "0", b.BalanceOf("b").String())
		})
	}
}

func TestBalanceOfIsACopy(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Credit("a", big.NewInt(5)))
	b.BalanceOf("a").SetInt64(1000)
	assert.Equal(t, "5", b.BalanceOf("a").String())
}
