package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

const (
	gov  = "gov"
	fund = "fund"
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func mustInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad integer %q", s)
	return v
}

func newLedger(t *testing.T) (*Ledger, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	l, err := New(Config{
		Gov:                   gov,
		Fund:                  fund,
		InitialSupply:         tokens(1000),
		MaxSupply:             tokens(2000),
		RebaseInterval:        time.Hour,
		RebaseBasisPoints:     2,
		MaxIntervalsPerRebase: 10,
		DefaultTransfer: TransferConfig{
			ReceiverBurnBasisPoints: 43,
			ReceiverFundBasisPoints: 7,
		},
		Clock: clk,
	})
	require.NoError(t, err)
	return l, clk
}

func assertAmount(t *testing.T, want, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want.String(), got.String(), msgAndArgs...)
}

func sumBalances(l *Ledger) *big.Int {
	sum := big.NewInt(0)
	for _, a := range l.Accounts() {
		sum.Add(sum, l.BalanceOf(a))
	}
	return sum
}

func TestNewMintsInitialSupply(t *testing.T) {
	l, _ := newLedger(t)
	assertAmount(t, tokens(1000), l.BalanceOf(gov))
	assertAmount(t, tokens(1000), l.TotalSupply())
	assertAmount(t, DefaultDivisor, l.NormalDivisor())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = New(Config{Gov: gov, RebaseInterval: time.Minute})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = New(Config{Gov: gov, InitialSupply: tokens(3), MaxSupply: tokens(2)})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestTransferDeductsFees(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Transfer(gov, "user0", tokens(200)))

	assertAmount(t, tokens(199), l.BalanceOf("user0"))
	assertAmount(t, tokens(800), l.BalanceOf(gov))
	// 7 bps of 200 to the fund, 43 bps burnt
	assertAmount(t, mustInt(t, "140000000000000000"), l.BalanceOf(fund))
	assertAmount(t, mustInt(t, "999140000000000000000"), l.TotalSupply())
	assertAmount(t, l.TotalSupply(), sumBalances(l))
}

func TestTransferWithoutFundBurnsEverything(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.SetFund(gov, ""))
	require.NoError(t, l.Transfer(gov, "user0", tokens(200)))
	assertAmount(t, tokens(199), l.BalanceOf("user0"))
	assertAmount(t, mustInt(t, "999000000000000000000"), l.TotalSupply())
}

func TestTransferInsufficientBalanceIsAtomic(t *testing.T) {
	l, _ := newLedger(t)
	err := l.Transfer("user0", "user1", big.NewInt(1))
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)

	err = l.Transfer(gov, "user1", tokens(1001))
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
	assertAmount(t, tokens(1000), l.BalanceOf(gov))
	assertAmount(t, big.NewInt(0), l.BalanceOf("user1"))
	assertAmount(t, tokens(1000), l.TotalSupply())
}

func TestTransferFromChecksAllowanceFirst(t *testing.T) {
	l, _ := newLedger(t)

	err := l.TransferFrom("vault", "user0", "vault", big.NewInt(100))
	require.ErrorIs(t, err, errs.ErrAllowanceExceeded)

	require.NoError(t, l.Approve("user0", "vault", big.NewInt(100)))
	err = l.TransferFrom("vault", "user0", "vault", big.NewInt(100))
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
	assertAmount(t, big.NewInt(100), l.Allowance("user0", "vault"), "failed transfer keeps allowance")

	require.NoError(t, l.Transfer(gov, "user0", big.NewInt(1000)))
	assertAmount(t, big.NewInt(996), l.BalanceOf("user0"))

	require.NoError(t, l.TransferFrom("vault", "user0", "vault", big.NewInt(60)))
	assertAmount(t, big.NewInt(40), l.Allowance("user0", "vault"))
	assertAmount(t, big.NewInt(936), l.BalanceOf("user0"))
}

func TestSafesTransferAtFaceValue(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.CreateSafe(gov, "vault"))
	require.NoError(t, l.Transfer(gov, "user0", tokens(200)))
	require.NoError(t, l.Approve("user0", "vault", tokens(199)))

	require.NoError(t, l.TransferFrom("vault", "user0", "vault", tokens(199)))
	assertAmount(t, tokens(199), l.BalanceOf("vault"))
	assertAmount(t, big.NewInt(0), l.BalanceOf("user0"))

	require.NoError(t, l.Transfer("vault", "user1", tokens(99)))
	assertAmount(t, tokens(99), l.BalanceOf("user1"))
}

func TestCreateSafe(t *testing.T) {
	l, clk := newLedger(t)
	require.NoError(t, l.Transfer(gov, "pool", tokens(200)))
	clk.Add(4 * time.Hour)
	require.True(t, l.Rebase())
	before := l.BalanceOf("pool")

	require.NoError(t, l.CreateSafe(gov, "pool"))
	assertAmount(t, before, l.BalanceOf("pool"))
	assert.True(t, l.IsSafe("pool"))
	assert.Equal(t, []string{"pool"}, l.Safes())

	err := l.CreateSafe(gov, "pool")
	require.ErrorIs(t, err, errs.ErrAlreadyInitialized)

	clk.Add(4 * time.Hour)
	require.True(t, l.Rebase())
	assertAmount(t, before, l.BalanceOf("pool"), "safes do not decay")
}

func TestRebaseMatchesReferenceDecay(t *testing.T) {
	l, clk := newLedger(t)
	require.NoError(t, l.Transfer(gov, "user1", tokens(200)))
	require.Equal(t, tokens(199), l.BalanceOf("user1"))

	clk.Add(20 * time.Hour)
	require.True(t, l.Rebase())
	assertAmount(t, mustInt(t, "198602437640331584234"), l.BalanceOf("user1"))
	assertAmount(t, big.NewInt(100200180), l.NormalDivisor())

	clk.Add(20 * time.Hour)
	require.True(t, l.Rebase())
	assertAmount(t, mustInt(t, "198205670953088402916"), l.BalanceOf("user1"))
	assert.Equal(t, uint64(2), l.RebaseCount())
}

func TestRebaseIdempotentWithoutElapsedInterval(t *testing.T) {
	l, clk := newLedger(t)
	assert.False(t, l.Rebase())

	clk.Add(time.Hour)
	require.True(t, l.Rebase())
	div := l.NormalDivisor()
	supply := l.TotalSupply()

	assert.False(t, l.Rebase())
	assertAmount(t, div, l.NormalDivisor())
	assertAmount(t, supply, l.TotalSupply())
}

func TestRebaseRetainsPartialInterval(t *testing.T) {
	l, clk := newLedger(t)
	start := l.LastRebaseTime()

	clk.Add(90 * time.Minute)
	require.True(t, l.Rebase())
	assert.True(t, start.Add(time.Hour).Equal(l.LastRebaseTime()))
	assertAmount(t, big.NewInt(100020000), l.NormalDivisor())

	clk.Add(30 * time.Minute)
	require.True(t, l.Rebase(), "carried half interval completes a full one")
	assertAmount(t, big.NewInt(100040004), l.NormalDivisor())
}

func TestRebaseShrinksSupplyAndHolders(t *testing.T) {
	l, clk := newLedger(t)
	require.NoError(t, l.CreateSafe(gov, "vault"))
	for _, a := range []string{"a", "b", "c"} {
		require.NoError(t, l.Transfer(gov, a, tokens(10)))
	}
	require.NoError(t, l.Transfer(gov, "vault", tokens(10)))

	before := map[string]*big.Int{}
	for _, a := range []string{"a", "b", "c", "vault"} {
		before[a] = l.BalanceOf(a)
	}
	supply := l.TotalSupply()

	clk.Add(3 * time.Hour)
	require.True(t, l.Rebase())

	for _, a := range []string{"a", "b", "c"} {
		assert.Equal(t, -1, l.BalanceOf(a).Cmp(before[a]), "%s should lose value", a)
	}
	assertAmount(t, before["vault"], l.BalanceOf("vault"))
	assert.Equal(t, -1, l.TotalSupply().Cmp(supply))

	gap := new(big.Int).Sub(l.TotalSupply(), sumBalances(l))
	assert.GreaterOrEqual(t, gap.Sign(), 0)
	assert.Less(t, gap.Int64(), int64(len(l.Accounts())))
}

func TestTransferLimits(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Transfer(gov, "user0", big.NewInt(10000)))
	require.NoError(t, l.SetTransferConfig(gov, "user0", TransferConfig{
		MaxTransferAmount: big.NewInt(1000),
		MinHolding:        big.NewInt(500),
	}))
	bal := l.BalanceOf("user0")

	err := l.Transfer("user0", "user1", big.NewInt(1001))
	require.ErrorIs(t, err, errs.ErrTransferLimit)

	require.NoError(t, l.SetTransferConfig(gov, "user0", TransferConfig{MinHolding: big.NewInt(500)}))
	leaving := new(big.Int).Sub(bal, big.NewInt(100))
	err = l.Transfer("user0", "user1", leaving)
	require.ErrorIs(t, err, errs.ErrTransferLimit)

	require.NoError(t, l.Transfer("user0", "user1", bal), "emptying the account is allowed")
	assertAmount(t, big.NewInt(0), l.BalanceOf("user0"))
}

func TestTransferConfigOverride(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.SetTransferConfig(gov, "vault", TransferConfig{}))
	require.NoError(t, l.Transfer(gov, "vault", big.NewInt(1000)))
	assertAmount(t, big.NewInt(1000), l.BalanceOf("vault"))

	cfg, ok := l.TransferConfigFor("vault")
	assert.True(t, ok)
	assert.Zero(t, cfg.ReceiverBurnBasisPoints)

	require.NoError(t, l.ClearTransferConfig(gov, "vault"))
	cfg, ok = l.TransferConfigFor("vault")
	assert.False(t, ok)
	assert.Equal(t, uint64(43), cfg.ReceiverBurnBasisPoints)

	err := l.SetTransferConfig(gov, "vault", TransferConfig{SenderFundBasisPoints: 21})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestMintAndBurn(t *testing.T) {
	l, _ := newLedger(t)

	require.ErrorIs(t, l.Mint("user0", "user0", tokens(1)), errs.ErrForbidden)
	require.ErrorIs(t, l.Mint(gov, "user0", tokens(1001)), errs.ErrInvalidArgument)
	require.NoError(t, l.Mint(gov, "user0", tokens(1000)))
	assertAmount(t, tokens(2000), l.TotalSupply())

	require.ErrorIs(t, l.Burn("floor", "user0", tokens(1)), errs.ErrForbidden, "no floor registered yet")
	require.NoError(t, l.SetFloor(gov, "floor"))
	require.ErrorIs(t, l.SetFloor(gov, "floor2"), errs.ErrAlreadyInitialized)

	require.ErrorIs(t, l.Burn("user0", "user0", tokens(1)), errs.ErrForbidden)
	require.ErrorIs(t, l.Burn("floor", "user0", tokens(1001)), errs.ErrInsufficientBalance)
	require.NoError(t, l.Burn("floor", "user0", tokens(400)))
	assertAmount(t, tokens(600), l.BalanceOf("user0"))
	assertAmount(t, tokens(1600), l.TotalSupply())
}

func TestGovernanceForbidden(t *testing.T) {
	l, _ := newLedger(t)
	for _, caller := range []string{"", "user0", fund} {
		require.ErrorIs(t, l.SetGov(caller, caller+"x"), errs.ErrForbidden)
		require.ErrorIs(t, l.SetFund(caller, "f"), errs.ErrForbidden)
		require.ErrorIs(t, l.SetMinter(caller, "m"), errs.ErrForbidden)
		require.ErrorIs(t, l.SetFloor(caller, "floor"), errs.ErrForbidden)
		require.ErrorIs(t, l.CreateSafe(caller, "s"), errs.ErrForbidden)
		require.ErrorIs(t, l.SetTransferConfig(caller, "s", TransferConfig{}), errs.ErrForbidden)
		require.ErrorIs(t, l.ClearTransferConfig(caller, "s"), errs.ErrForbidden)
		require.ErrorIs(t, l.SetDefaultTransferConfig(caller, TransferConfig{}), errs.ErrForbidden)
		require.ErrorIs(t, l.SetRebaseConfig(caller, time.Hour, 1), errs.ErrForbidden)
	}

	require.NoError(t, l.SetGov(gov, "gov2"))
	assert.Equal(t, "gov2", l.Gov())
	require.ErrorIs(t, l.SetFund(gov, "f"), errs.ErrForbidden)
	require.NoError(t, l.SetFund("gov2", "f"))
}

func TestSetRebaseConfig(t *testing.T) {
	l, clk := newLedger(t)
	require.ErrorIs(t, l.SetRebaseConfig(gov, 10*time.Minute, 2), errs.ErrInvalidArgument)
	require.ErrorIs(t, l.SetRebaseConfig(gov, time.Hour, 501), errs.ErrInvalidArgument)

	require.NoError(t, l.SetRebaseConfig(gov, 2*time.Hour, 0))
	clk.Add(4 * time.Hour)
	assert.False(t, l.Rebase(), "zero rate never moves the divisor")
	assertAmount(t, DefaultDivisor, l.NormalDivisor())
}

func TestMaxDivisorStopsRebase(t *testing.T) {
	clk := clock.NewMock()
	l, err := New(Config{
		Gov:               gov,
		InitialSupply:     tokens(1),
		RebaseBasisPoints: 500,
		MaxDivisor:        big.NewInt(105_000_000),
		Clock:             clk,
	})
	require.NoError(t, err)

	clk.Add(time.Hour)
	require.True(t, l.Rebase())
	clk.Add(time.Hour)
	assert.False(t, l.Rebase())
	assertAmount(t, big.NewInt(105_000_000), l.NormalDivisor())
}
