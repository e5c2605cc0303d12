package supply

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xvix-labs/xvix-floor/pkg/policy"
)

func TestInvariantTotalEqualsCircPlusNonCirc(t *testing.T) {
	pr, clk := newProtocol(t, func(p *policy.Policy) {
		p.NonCirculating = []policy.Cohort{{Name: "foundation", Reason: "lockup", Accounts: []string{"foundation"}}}
	})
	l := pr.Ledger
	va := pr.Vault.Account()
	require.NoError(t, l.Transfer("gov", "pool", amount(t, pr, "150")))
	require.NoError(t, l.Transfer("gov", "foundation", amount(t, pr, "100")))
	for i, acct := range []string{"u0", "u1", "u2"} {
		require.NoError(t, l.Transfer("gov", acct, amount(t, pr, fmt.Sprint(50*(i+1)))))
	}
	c := NewComputer(pr)

	check := func(step string) {
		t.Helper()
		snap, err := c.ComputeSnapshot()
		require.NoError(t, err)
		total, _ := new(big.Int).SetString(snap.Total, 10)
		circ, _ := new(big.Int).SetString(snap.Circulating, 10)
		non, _ := new(big.Int).SetString(snap.NonCirculating.Sum, 10)
		require.Equal(t, total.String(), new(big.Int).Add(circ, non).String(), step)
	}

	check("genesis")
	for i, acct := range []string{"u0", "u1"} {
		bal := l.BalanceOf(acct)
		require.NoError(t, l.Approve(acct, va, bal))
		require.NoError(t, pr.Vault.Deposit(acct, bal))
		check(fmt.Sprintf("deposit %d", i))
	}
	for i := 0; i < 5; i++ {
		clk.Add(7 * time.Hour)
		pr.Rebase()
		check(fmt.Sprintf("rebase %d", i))
	}
	_, err := pr.Vault.Refund("gov", "gov")
	require.NoError(t, err)
	check("refund")
	require.NoError(t, pr.Vault.Withdraw("u0", "u0", pr.Vault.BalanceOf("u0")))
	check("withdraw")
}
