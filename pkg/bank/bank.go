// Package bank tracks balances of the base currency that backs the floor
// reserve and funds the time distributor. Funding arrives out-of-band through
// Credit; everything else moves between accounts with Transfer.
package bank

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

type Bank struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	supply   *big.Int
	log      *zap.Logger
}

func New(log *zap.Logger) *Bank {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bank{balances: make(map[string]*big.Int), supply: big.NewInt(0), log: log}
}

// Credit adds externally sourced base currency to account.
func (b *Bank) Credit(account string, amount *big.Int) error {
	if account == "" {
		return fmt.Errorf("bank: credit: empty account: %w", errs.ErrInvalidArgument)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: credit %s: %w", account, errs.ErrInsufficientAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(account, amount)
	b.supply.Add(b.supply, amount)
	b.log.Debug("bank credit", zap.String("account", account), zap.Stringer("amount", amount))
	return nil
}

// Transfer moves amount from one account to another. A zero amount is a no-op.
func (b *Bank) Transfer(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: transfer %s -> %s: %w", from, to, errs.ErrInsufficientAmount)
	}
	if to == "" {
		return fmt.Errorf("bank: transfer %s: empty receiver: %w", from, errs.ErrInvalidArgument)
	}
	if amount.Sign() == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("bank: transfer %s -> %s amount %s: %w", from, to, amount, errs.ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(b.balances, from)
	}
	b.add(to, amount)
	b.log.Debug("bank transfer", zap.String("from", from), zap.String("to", to), zap.Stringer("amount", amount))
	return nil
}

func (b *Bank) BalanceOf(account string) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v := b.balances[account]; v != nil {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// Supply is the total base currency ever credited.
func (b *Bank) Supply() *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.supply)
}

// Accounts lists accounts with a non-zero balance in lexical order.
func (b *Bank) Accounts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.balances))
	for k := range b.balances {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Bank) add(account string, amount *big.Int) {
	bal := b.balances[account]
	if bal == nil {
		bal = big.NewInt(0)
		b.balances[account] = bal
	}
	bal.Add(bal, amount)
}
