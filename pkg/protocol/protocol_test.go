package protocol

import (
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvix-labs/xvix-floor/pkg/policy"
)

func newProtocol(t *testing.T) (*Protocol, *clock.Mock) {
	t.Helper()
	p := policy.Default()
	p.Floor.Reserve = "10"
	p.Distributor.Funds = "100"
	p.Distributor.Streams = []policy.Stream{{Beneficiary: "vault", Rate: "0.001"}}
	p.Safes = []string{"pool", "vault"}
	clk := clock.NewMock()
	pr, err := New(p, clk, nil)
	require.NoError(t, err)
	return pr, clk
}

func amount(t *testing.T, pr *Protocol, s string) *big.Int {
	t.Helper()
	v, err := pr.Amount(s)
	require.NoError(t, err)
	return v
}

func TestNewWiresComponents(t *testing.T) {
	pr, _ := newProtocol(t)
	va := pr.Vault.Account()

	assert.True(t, pr.Ledger.IsSafe(va))
	assert.True(t, pr.Ledger.IsSafe("pool"))
	assert.Equal(t, pr.Floor.Account(), pr.Ledger.Floor())
	assert.True(t, pr.Floor.IsRefunder(va))
	assert.True(t, pr.Vault.HasDistributor())
	assert.True(t, pr.Vault.IsSender("gov"))
	assert.Equal(t, []string{va}, pr.Distributor.Beneficiaries())
	assert.Equal(t, "1000000000000000", pr.Distributor.Rate(va).String())

	assert.Equal(t, amount(t, pr, "1000").String(), pr.Ledger.TotalSupply().String())
	assert.Equal(t, amount(t, pr, "10").String(), pr.Floor.Reserve().String())
	assert.Equal(t, amount(t, pr, "100").String(), pr.Distributor.Funds().String())
	assert.Equal(t, int32(18), pr.Decimals())
}

func TestNewRejectsBadPolicy(t *testing.T) {
	p := policy.Default()
	p.Rebase.Interval = policy.Duration(time.Minute)
	_, err := New(p, clock.NewMock(), nil)
	require.Error(t, err, "ledger bounds the rebase interval")

	p = policy.Default()
	p.Accounts.Vault = ""
	_, err = New(p, clock.NewMock(), nil)
	require.Error(t, err)

	pr, _ := newProtocol(t)
	_, err = pr.Amount("")
	require.Error(t, err)
}

func TestDepositRebaseClaimRefund(t *testing.T) {
	pr, clk := newProtocol(t)
	va := pr.Vault.Account()
	l := pr.Ledger

	require.NoError(t, l.Transfer("gov", "user0", amount(t, pr, "200")))
	require.Equal(t, amount(t, pr, "199").String(), l.BalanceOf("user0").String())
	require.NoError(t, l.Approve("user0", va, amount(t, pr, "199")))
	require.NoError(t, pr.Deposit("user0", amount(t, pr, "199")))

	clk.Add(20 * time.Hour)
	require.True(t, pr.Rebase())
	assert.False(t, pr.Rebase())
	assert.Equal(t, "198801020059022923955", pr.Vault.BalanceOf("user0").String())
	assert.Equal(t, "198979940977076045", pr.Vault.PendingBurn().String())

	// 72000s at 0.001 per second, shared by a single depositor
	paid, err := pr.Claim("user0", "user0")
	require.NoError(t, err)
	streamed := amount(t, pr, "72")
	assert.Equal(t, streamed.String(), pr.Distributor.Paid(va).String())
	gap := new(big.Int).Sub(streamed, paid)
	assert.True(t, gap.Sign() >= 0 && gap.Cmp(big.NewInt(1)) <= 0, "reward rounding %s", gap)
	assert.Equal(t, paid.String(), pr.Bank.BalanceOf("user0").String())

	pending := pr.Vault.PendingBurn()
	want := pr.Floor.GetRefundAmount(pending)
	supply := l.TotalSupply()
	refund, err := pr.Refund("gov", "user0")
	require.NoError(t, err)
	assert.Equal(t, want.String(), refund.String())
	assert.Equal(t, "0", pr.Vault.PendingBurn().String())
	assert.Equal(t, new(big.Int).Sub(supply, pending).String(), l.TotalSupply().String())

	require.NoError(t, pr.Withdraw("user0", "user0", pr.Vault.BalanceOf("user0")))
	assert.Equal(t, "198801020059022923955", l.BalanceOf("user0").String())
	assert.Equal(t, "0", pr.Vault.Held().String())

	sum := big.NewInt(0)
	for _, a := range pr.Bank.Accounts() {
		sum.Add(sum, pr.Bank.BalanceOf(a))
	}
	assert.Equal(t, pr.Bank.Supply().String(), sum.String(), "bank conserves base currency")
}

func TestViewAndUpdate(t *testing.T) {
	pr, clk := newProtocol(t)
	var before, after string
	require.NoError(t, pr.View(func() error {
		before = pr.Ledger.NormalDivisor().String()
		return nil
	}))
	clk.Add(time.Hour)
	require.NoError(t, pr.Update(func() error {
		pr.Ledger.Rebase()
		return nil
	}))
	require.NoError(t, pr.View(func() error {
		after = pr.Ledger.NormalDivisor().String()
		return nil
	}))
	assert.Equal(t, "100000000", before)
	assert.Equal(t, "100020000", after)
}

func depositAll(t *testing.T, pr *Protocol, acct, amt string) {
	t.Helper()
	require.NoError(t, pr.Ledger.Transfer("gov", acct, amount(t, pr, amt)))
	bal := pr.Ledger.BalanceOf(acct)
	require.NoError(t, pr.Ledger.Approve(acct, pr.Vault.Account(), bal))
	require.NoError(t, pr.Deposit(acct, bal))
}

func TestVaultOpsWaitForUpdate(t *testing.T) {
	pr, _ := newProtocol(t)
	depositAll(t, pr, "user0", "200")

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = pr.Update(func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan error, 1)
	go func() { done <- pr.Withdraw("user0", "user0", pr.Vault.BalanceOf("user0")) }()
	select {
	case err := <-done:
		t.Fatalf("withdraw finished while an update held the protocol: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "0", pr.Vault.Held().String())
}

// A withdrawal racing a rebase lands on one of the two serial outcomes.
func TestWithdrawRacingRebase(t *testing.T) {
	serial := func(rebaseFirst bool) (string, string) {
		pr, clk := newProtocol(t)
		depositAll(t, pr, "user0", "200")
		clk.Add(time.Hour)
		amt := amount(t, pr, "100")
		if rebaseFirst {
			require.True(t, pr.Rebase())
		}
		require.NoError(t, pr.Withdraw("user0", "user0", amt))
		if !rebaseFirst {
			require.True(t, pr.Rebase())
		}
		return pr.Vault.BalanceOf("user0").String(), pr.Vault.PendingBurn().String()
	}
	balA, burnA := serial(true)
	balB, burnB := serial(false)

	for i := 0; i < 20; i++ {
		pr, clk := newProtocol(t)
		depositAll(t, pr, "user0", "200")
		clk.Add(time.Hour)
		amt := amount(t, pr, "100")

		var g errgroup.Group
		g.Go(func() error { return pr.Withdraw("user0", "user0", amt) })
		g.Go(func() error {
			pr.Rebase()
			return nil
		})
		require.NoError(t, g.Wait())

		bal, burn := pr.Vault.BalanceOf("user0").String(), pr.Vault.PendingBurn().String()
		assert.True(t, (bal == balA && burn == burnA) || (bal == balB && burn == burnB),
			"balance %s burn %s matches no serial order", bal, burn)
	}
}
