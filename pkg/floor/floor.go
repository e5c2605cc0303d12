// Package floor holds the base-currency reserve that guarantees a minimum
// redemption value for burned ledger units.
package floor

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

const (
	BasisPointsDivisor = 10000
	// DefaultRefundBasisPoints pays out 90% of the pro-rata reserve.
	DefaultRefundBasisPoints = 9000
)

// Ledger is the part of the asset the floor prices against and burns from.
type Ledger interface {
	TotalSupply() *big.Int
	Burn(caller, from string, amount *big.Int) error
}

// Bank carries the reserve as the floor account's base-currency balance.
type Bank interface {
	BalanceOf(account string) *big.Int
	Transfer(from, to string, amount *big.Int) error
}

type Config struct {
	// Account is the floor's identity on the ledger and in the bank.
	Account           string
	Gov               string
	RefundBasisPoints uint64
	Logger            *zap.Logger
}

type Floor struct {
	mu        sync.Mutex
	account   string
	gov       string
	refundBps uint64
	refunders map[string]bool

	ledger Ledger
	bank   Bank
	log    *zap.Logger
}

func New(cfg Config, l Ledger, b Bank) (*Floor, error) {
	if cfg.Account == "" || cfg.Gov == "" {
		return nil, fmt.Errorf("floor: account and governor are required: %w", errs.ErrInvalidArgument)
	}
	if cfg.RefundBasisPoints == 0 {
		cfg.RefundBasisPoints = DefaultRefundBasisPoints
	}
	if cfg.RefundBasisPoints > BasisPointsDivisor {
		return nil, fmt.Errorf("floor: refund basis points %d: %w", cfg.RefundBasisPoints, errs.ErrInvalidArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Floor{
		account:   cfg.Account,
		gov:       cfg.Gov,
		refundBps: cfg.RefundBasisPoints,
		refunders: make(map[string]bool),
		ledger:    l,
		bank:      b,
		log:       cfg.Logger.Named("floor"),
	}, nil
}

func (f *Floor) Account() string { return f.account }

// Reserve is the base currency currently backing refunds.
func (f *Floor) Reserve() *big.Int {
	return f.bank.BalanceOf(f.account)
}

// Fund moves base currency from an external account into the reserve.
func (f *Floor) Fund(from string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("floor: fund: %w", errs.ErrInsufficientAmount)
	}
	if err := f.bank.Transfer(from, f.account, amount); err != nil {
		return fmt.Errorf("floor: fund from %s: %w", from, err)
	}
	f.log.Debug("reserve funded", zap.String("from", from), zap.Stringer("amount", amount))
	return nil
}

// GetRefundAmount prices burned units at the pro-rata share of the reserve
// against the ledger supply, scaled by the refund basis points. The result
// never exceeds the reserve.
func (f *Floor) GetRefundAmount(burned *big.Int) *big.Int {
	return f.refundAmount(burned, f.Reserve())
}

func (f *Floor) refundAmount(burned, reserve *big.Int) *big.Int {
	if burned == nil || burned.Sign() <= 0 {
		return big.NewInt(0)
	}
	supply := f.ledger.TotalSupply()
	if supply.Sign() == 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(reserve, burned)
	amount.Quo(amount, supply)
	amount.Mul(amount, new(big.Int).SetUint64(f.refundBps))
	amount.Quo(amount, big.NewInt(BasisPointsDivisor))
	if amount.Cmp(reserve) > 0 {
		amount.Set(reserve)
	}
	return amount
}

// Refund burns burned units from the caller's ledger balance and pays the
// refund amount to to. Only authorized refunders may call it.
func (f *Floor) Refund(caller, to string, burned *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.refunders[caller] {
		f.log.Warn("forbidden", zap.String("op", "refund"), zap.String("caller", caller))
		return nil, fmt.Errorf("floor: refund by %q: %w", caller, errs.ErrForbidden)
	}
	if burned == nil || burned.Sign() <= 0 {
		return nil, fmt.Errorf("floor: refund: %w", errs.ErrInsufficientAmount)
	}
	reserve := f.Reserve()
	if reserve.Sign() == 0 {
		return nil, fmt.Errorf("floor: refund %s against an empty reserve: %w", burned, errs.ErrInsufficientReserve)
	}
	amount := f.refundAmount(burned, reserve)
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("floor: refund amount for %s is zero: %w", burned, errs.ErrInsufficientAmount)
	}
	if amount.Cmp(reserve) > 0 {
		return nil, fmt.Errorf("floor: refund %s above reserve %s: %w", amount, reserve, errs.ErrInsufficientReserve)
	}
	if err := f.ledger.Burn(f.account, caller, burned); err != nil {
		return nil, fmt.Errorf("floor: refund burn: %w", err)
	}
	if err := f.bank.Transfer(f.account, to, amount); err != nil {
		// the reserve was checked under the lock; only a foreign debit can get here
		return nil, fmt.Errorf("floor: refund payout: %w", errs.ErrInsufficientReserve)
	}
	f.log.Info("refund",
		zap.String("caller", caller),
		zap.String("to", to),
		zap.Stringer("burned", burned),
		zap.Stringer("paid", amount))
	return amount, nil
}

func (f *Floor) AddRefunder(caller, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.gov {
		return fmt.Errorf("floor: add refunder by %q: %w", caller, errs.ErrForbidden)
	}
	if account == "" {
		return fmt.Errorf("floor: add refunder: empty account: %w", errs.ErrInvalidArgument)
	}
	f.refunders[account] = true
	return nil
}

func (f *Floor) RemoveRefunder(caller, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.gov {
		return fmt.Errorf("floor: remove refunder by %q: %w", caller, errs.ErrForbidden)
	}
	delete(f.refunders, account)
	return nil
}

func (f *Floor) SetGov(caller, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.gov {
		return fmt.Errorf("floor: set gov by %q: %w", caller, errs.ErrForbidden)
	}
	if account == "" {
		return fmt.Errorf("floor: set gov: empty account: %w", errs.ErrInvalidArgument)
	}
	f.gov = account
	return nil
}

func (f *Floor) Gov() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gov
}

func (f *Floor) IsRefunder(account string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunders[account]
}

func (f *Floor) Refunders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.refunders))
	for a := range f.refunders {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (f *Floor) RefundBasisPoints() uint64 { return f.refundBps }
