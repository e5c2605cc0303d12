// Package distributor streams an externally funded base-currency payout to
// registered beneficiaries at a per-second rate.
//
// Rate changes never reprice elapsed time: SetDistribution first settles
// every beneficiary's elapsed time at the rate that was in force into an
// accrued balance, which the next Claim pays together with new accrual.
package distributor

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/internal/stream"
	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

// Bank holds the distributor's funds as a base-currency balance.
type Bank interface {
	BalanceOf(account string) *big.Int
	Transfer(from, to string, amount *big.Int) error
}

type Status int

const (
	PaidZero Status = iota
	PaidPartial
	PaidFull
)

func (s Status) String() string {
	switch s {
	case PaidFull:
		return "paid_full"
	case PaidPartial:
		return "paid_partial"
	default:
		return "paid_zero"
	}
}

// Payout is the outcome of a claim. Owed minus Paid is forgone.
type Payout struct {
	Owed   *big.Int
	Paid   *big.Int
	Status Status
}

func (p Payout) Shortfall() *big.Int {
	return new(big.Int).Sub(p.Owed, p.Paid)
}

func newPayout(owed, paid *big.Int) Payout {
	p := Payout{Owed: owed, Paid: paid, Status: PaidZero}
	switch {
	case paid.Sign() == 0:
	case paid.Cmp(owed) < 0:
		p.Status = PaidPartial
	default:
		p.Status = PaidFull
	}
	return p
}

type Config struct {
	Account string
	Gov     string
	Clock   clock.Clock
	Logger  *zap.Logger
}

type Distributor struct {
	mu      sync.Mutex
	account string
	gov     string

	rates     map[string]*big.Int
	lastClaim map[string]time.Time
	accrued   map[string]*big.Int
	paid      map[string]*big.Int

	bank Bank
	clk  clock.Clock
	log  *zap.Logger
}

func New(cfg Config, b Bank) (*Distributor, error) {
	if cfg.Account == "" || cfg.Gov == "" {
		return nil, fmt.Errorf("distributor: account and governor are required: %w", errs.ErrInvalidArgument)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Distributor{
		account:   cfg.Account,
		gov:       cfg.Gov,
		rates:     make(map[string]*big.Int),
		lastClaim: make(map[string]time.Time),
		accrued:   make(map[string]*big.Int),
		paid:      make(map[string]*big.Int),
		bank:      b,
		clk:       cfg.Clock,
		log:       cfg.Logger.Named("distributor"),
	}, nil
}

// SetDistribution replaces the rate table. Beneficiaries left out of the new
// table stop accruing but keep what they had earned.
func (d *Distributor) SetDistribution(caller string, beneficiaries []string, rates []*big.Int) error {
	if len(beneficiaries) != len(rates) {
		return fmt.Errorf("distributor: %d beneficiaries for %d rates: %w", len(beneficiaries), len(rates), errs.ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(beneficiaries))
	for i, b := range beneficiaries {
		if b == "" || seen[b] {
			return fmt.Errorf("distributor: beneficiary %d empty or duplicated: %w", i, errs.ErrInvalidArgument)
		}
		if rates[i] == nil || rates[i].Sign() < 0 {
			return fmt.Errorf("distributor: rate for %s: %w", b, errs.ErrInvalidArgument)
		}
		seen[b] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.gov {
		d.log.Warn("forbidden", zap.String("op", "set distribution"), zap.String("caller", caller))
		return fmt.Errorf("distributor: set distribution by %q: %w", caller, errs.ErrForbidden)
	}
	now := d.clk.Now()
	for b := range d.rates {
		d.settle(b, now)
		if !seen[b] {
			delete(d.rates, b)
			delete(d.lastClaim, b)
		}
	}
	for i, b := range beneficiaries {
		d.rates[b] = new(big.Int).Set(rates[i])
		if _, ok := d.lastClaim[b]; !ok {
			d.lastClaim[b] = now
		}
		d.log.Info("distribution set", zap.String("beneficiary", b), zap.Stringer("rate", rates[i]))
	}
	return nil
}

// settle moves time elapsed under the current rate into the accrued bucket.
func (d *Distributor) settle(b string, now time.Time) {
	owed := stream.Accrued(d.rates[b], d.lastClaim[b], now)
	if owed.Sign() > 0 {
		acc := d.accrued[b]
		if acc == nil {
			acc = big.NewInt(0)
			d.accrued[b] = acc
		}
		acc.Add(acc, owed)
	}
	d.lastClaim[b] = stream.Checkpoint(d.lastClaim[b], now)
}

// Claim pays beneficiary's accrual to to, capped by the distributor's funds.
// Any shortfall is reported in the payout and forgone; the claim clock
// restarts either way.
func (d *Distributor) Claim(beneficiary, to string) (Payout, error) {
	if to == "" {
		return Payout{}, fmt.Errorf("distributor: claim for %s: empty receiver: %w", beneficiary, errs.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clk.Now()
	owed := d.pending(beneficiary, now)
	paid := stream.Capped(owed, d.bank.BalanceOf(d.account))
	if paid.Sign() > 0 {
		if err := d.bank.Transfer(d.account, to, paid); err != nil {
			return Payout{}, fmt.Errorf("distributor: claim for %s: %w", beneficiary, err)
		}
		total := d.paid[beneficiary]
		if total == nil {
			total = big.NewInt(0)
			d.paid[beneficiary] = total
		}
		total.Add(total, paid)
	}
	if _, ok := d.rates[beneficiary]; ok {
		d.lastClaim[beneficiary] = stream.Checkpoint(d.lastClaim[beneficiary], now)
	}
	delete(d.accrued, beneficiary)

	p := newPayout(owed, paid)
	if p.Status == PaidPartial || (p.Status == PaidZero && owed.Sign() > 0) {
		d.log.Warn("distribution underfunded",
			zap.String("beneficiary", beneficiary),
			zap.Stringer("owed", owed),
			zap.Stringer("paid", paid))
	} else {
		d.log.Debug("claim", zap.String("beneficiary", beneficiary), zap.String("to", to), zap.Stringer("paid", paid))
	}
	return p, nil
}

// Pending is what beneficiary is owed if it claimed now, before capping.
func (d *Distributor) Pending(beneficiary string) *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending(beneficiary, d.clk.Now())
}

func (d *Distributor) pending(b string, now time.Time) *big.Int {
	owed := big.NewInt(0)
	if acc := d.accrued[b]; acc != nil {
		owed.Add(owed, acc)
	}
	if rate, ok := d.rates[b]; ok {
		owed.Add(owed, stream.Accrued(rate, d.lastClaim[b], now))
	}
	return owed
}

func (d *Distributor) Rate(beneficiary string) *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.rates[beneficiary]; r != nil {
		return new(big.Int).Set(r)
	}
	return big.NewInt(0)
}

// LastClaim reports when beneficiary's accrual last restarted.
func (d *Distributor) LastClaim(beneficiary string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.lastClaim[beneficiary]
	return t, ok
}

// Paid is the cumulative amount paid out for beneficiary.
func (d *Distributor) Paid(beneficiary string) *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.paid[beneficiary]; p != nil {
		return new(big.Int).Set(p)
	}
	return big.NewInt(0)
}

func (d *Distributor) Beneficiaries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.rates))
	for b := range d.rates {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Funds is the balance available to pay claims.
func (d *Distributor) Funds() *big.Int {
	return d.bank.BalanceOf(d.account)
}

func (d *Distributor) Account() string { return d.account }

func (d *Distributor) Gov() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gov
}

func (d *Distributor) SetGov(caller, account string) error {
	if account == "" {
		return fmt.Errorf("distributor: set gov: empty account: %w", errs.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.gov {
		return fmt.Errorf("distributor: set gov by %q: %w", caller, errs.ErrForbidden)
	}
	d.gov = account
	return nil
}
