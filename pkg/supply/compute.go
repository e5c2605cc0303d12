package supply

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"

	"github.com/xvix-labs/xvix-floor/internal/units"
	"github.com/xvix-labs/xvix-floor/pkg/protocol"
	"github.com/xvix-labs/xvix-floor/pkg/types"
)

type Computer struct {
	pr *protocol.Protocol
}

func NewComputer(pr *protocol.Protocol) *Computer {
	return &Computer{pr: pr}
}

// ComputeSnapshot reads every component at one consistent point and
// computes the supply breakdown.
func (c *Computer) ComputeSnapshot() (*types.ProtocolSnapshot, error) {
	if c == nil || c.pr == nil {
		return nil, errors.New("supply: no protocol")
	}
	var snap *types.ProtocolSnapshot
	err := c.pr.View(func() error {
		snap = c.compute()
		return nil
	})
	return snap, err
}

func (c *Computer) compute() *types.ProtocolSnapshot {
	pr := c.pr
	p := pr.Policy
	l := pr.Ledger
	dec := pr.Decimals()

	total := l.TotalSupply()
	var breakdown types.NonCircBreakdown
	counted := map[string]bool{}

	// Safes other than the vault: protocol-held, exempt from decay
	safes := cohort("safes", "rebase-exempt protocol accounts")
	for _, a := range l.Safes() {
		if a == pr.Vault.Account() {
			continue
		}
		counted[a] = true
		addItem(&safes, a, l.BalanceOf(a))
	}
	if len(safes.entry.Items) > 0 {
		breakdown.Cohorts = append(breakdown.Cohorts, safes.entry)
	}

	if fund := l.Fund(); fund != "" && !counted[fund] {
		counted[fund] = true
		breakdown.Cohorts = append(breakdown.Cohorts, types.CohortEntry{
			Name:    "fund",
			Reason:  "transfer fee fund",
			Account: fund,
			Amount:  l.BalanceOf(fund).String(),
		})
	}

	pending := pr.Vault.PendingBurn()
	breakdown.Cohorts = append(breakdown.Cohorts, types.CohortEntry{
		Name:    "vault_pending_burn",
		Reason:  "decay absorbed by the vault awaiting refund",
		Account: pr.Vault.Account(),
		Amount:  pending.String(),
	})

	for _, pc := range p.NonCirculating {
		e := cohort(pc.Name, pc.Reason)
		for _, a := range pc.Accounts {
			if counted[a] {
				continue
			}
			counted[a] = true
			addItem(&e, a, l.BalanceOf(a))
		}
		breakdown.Cohorts = append(breakdown.Cohorts, e.entry)
	}

	// Sum non-circ
	sum := big.NewInt(0)
	for _, e := range breakdown.Cohorts {
		v, _ := new(big.Int).SetString(e.Amount, 10)
		sum.Add(sum, v)
	}
	breakdown.Sum = sum.String()

	// Circulating = total - non_circ
	circ := new(big.Int).Sub(total, sum)
	if circ.Sign() < 0 {
		circ.SetInt64(0)
	}

	var maxSupply *string
	if ms, err := p.Amount(p.Token.MaxSupply); err == nil && ms != nil {
		s := ms.String()
		maxSupply = &s
	}

	reserve := pr.Floor.Reserve()
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec)), nil)
	epoch := l.RebaseCount()

	streams := make([]types.StreamState, 0)
	for _, b := range pr.Distributor.Beneficiaries() {
		streams = append(streams, types.StreamState{
			Beneficiary: b,
			Rate:        pr.Distributor.Rate(b).String(),
			Pending:     pr.Distributor.Pending(b).String(),
			Paid:        pr.Distributor.Paid(b).String(),
		})
	}

	v := pr.Vault
	snap := &types.ProtocolSnapshot{
		Symbol:         p.Token.Symbol,
		Decimals:       dec,
		Epoch:          epoch,
		UpdatedAt:      pr.Clock.Now().UTC(),
		Total:          total.String(),
		Circulating:    circ.String(),
		Max:            maxSupply,
		NonCirculating: breakdown,
		Rebase: types.RebaseState{
			NormalDivisor: l.NormalDivisor().String(),
			SafeDivisor:   l.SafeDivisor().String(),
			Interval:      p.Rebase.Interval.Std().String(),
			BasisPoints:   p.Rebase.BasisPoints,
			LastRebase:    l.LastRebaseTime().UTC(),
			NextRebase:    l.NextRebaseTime().UTC(),
		},
		Vault: types.VaultState{
			Account:          v.Account(),
			Divisor:          v.Divisor().String(),
			Held:             v.Held().String(),
			TotalShareSupply: v.TotalShareSupply().String(),
			PendingBurn:      pending.String(),
			RefundValue:      v.RefundValue().String(),
			Depositors:       len(v.Depositors()),
			TotalDeposited:   v.TotalDeposited().String(),
			TotalWithdrawn:   v.TotalWithdrawn().String(),
			TotalRefunded:    v.TotalRefunded().String(),
		},
		Floor: types.FloorState{
			Account:           pr.Floor.Account(),
			Reserve:           reserve.String(),
			RefundBasisPoints: pr.Floor.RefundBasisPoints(),
			UnitRefund:        pr.Floor.GetRefundAmount(unit).String(),
		},
		Distributor: types.DistributorState{
			Account: pr.Distributor.Account(),
			Funds:   pr.Distributor.Funds().String(),
			Streams: streams,
		},
		Display: types.Display{
			Total:       units.Format(total, dec),
			Circulating: units.Format(circ, dec),
			Reserve:     units.Format(reserve, dec),
			PendingBurn: units.Format(pending, dec),
		},
	}
	snap.ETag = computeETag(snap)
	return snap
}

type cohortBuilder struct {
	entry types.CohortEntry
	sum   *big.Int
}

func cohort(name, reason string) cohortBuilder {
	return cohortBuilder{entry: types.CohortEntry{Name: name, Reason: reason, Amount: "0"}, sum: big.NewInt(0)}
}

func addItem(c *cohortBuilder, account string, amount *big.Int) {
	c.entry.Items = append(c.entry.Items, types.AccountItem{Account: account, Amount: amount.String()})
	c.sum.Add(c.sum, amount)
	c.entry.Amount = c.sum.String()
}

// computeETag hashes the figures a client can observe, so identical state
// yields the same tag regardless of when it was computed.
func computeETag(s *types.ProtocolSnapshot) string {
	h := sha1.New()
	for _, part := range []string{
		s.Symbol,
		strconv.FormatUint(s.Epoch, 10),
		s.Total,
		s.Circulating,
		s.NonCirculating.Sum,
		s.Rebase.NormalDivisor,
		s.Vault.Held,
		s.Vault.TotalShareSupply,
		s.Vault.TotalRefunded,
		s.Floor.Reserve,
		s.Distributor.Funds,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
