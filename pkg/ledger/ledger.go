// Package ledger implements the self-deflating asset. Balances are stored as
// scaled units ("gons"): a normal account holds balance*normalDivisor and a
// safe holds balance*safeDivisor. Rebase grows normalDivisor, which contracts
// every normal balance at once while safes keep their face value.
//
// TotalSupply divides the aggregate gons of each class by its divisor, while
// BalanceOf divides one account's gons. Each account's balance rounds down on
// its own, so TotalSupply can exceed the sum of all balances by less than one
// base unit per account.
package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

type Ledger struct {
	mu sync.RWMutex

	gov    string
	fund   string
	floor  string
	minter string

	gons       map[string]*big.Int
	safes      map[string]bool
	configs    map[string]TransferConfig
	allowances map[string]map[string]*big.Int

	normalDivisor *big.Int
	safeDivisor   *big.Int
	maxDivisor    *big.Int
	normalGons    *big.Int
	safeGons      *big.Int
	maxSupply     *big.Int

	interval     time.Duration
	rebaseBps    uint64
	maxIntervals uint64
	lastRebase   time.Time
	rebaseCount  uint64

	defaultTransfer TransferConfig

	clk clock.Clock
	log *zap.Logger
}

// New builds a ledger and mints InitialSupply to the governor.
func New(cfg Config) (*Ledger, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		gov:             cfg.Gov,
		fund:            cfg.Fund,
		minter:          cfg.Gov,
		gons:            make(map[string]*big.Int),
		safes:           make(map[string]bool),
		configs:         make(map[string]TransferConfig),
		allowances:      make(map[string]map[string]*big.Int),
		normalDivisor:   new(big.Int).Set(cfg.InitialDivisor),
		safeDivisor:     new(big.Int).Set(cfg.InitialDivisor),
		normalGons:      big.NewInt(0),
		safeGons:        big.NewInt(0),
		interval:        cfg.RebaseInterval,
		rebaseBps:       cfg.RebaseBasisPoints,
		maxIntervals:    cfg.MaxIntervalsPerRebase,
		defaultTransfer: cfg.DefaultTransfer.clone(),
		clk:             cfg.Clock,
		log:             cfg.Logger.Named("ledger"),
	}
	if cfg.MaxDivisor != nil {
		l.maxDivisor = new(big.Int).Set(cfg.MaxDivisor)
	}
	if cfg.MaxSupply != nil {
		l.maxSupply = new(big.Int).Set(cfg.MaxSupply)
	}
	l.lastRebase = l.clk.Now()
	if cfg.InitialSupply != nil && cfg.InitialSupply.Sign() > 0 {
		l.credit(cfg.Gov, cfg.InitialSupply)
	}
	return l, nil
}

// BalanceOf returns the decayed balance of account, rounded toward zero.
func (l *Ledger) BalanceOf(account string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(account)
}

// TotalSupply is at least the sum of all balances and exceeds it by less
// than one base unit per account, since each balance is floored separately.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply()
}

func (l *Ledger) Allowance(owner, spender string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a := l.allowances[owner][spender]; a != nil {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

func (l *Ledger) Approve(owner, spender string, amount *big.Int) error {
	if owner == "" || spender == "" {
		return fmt.Errorf("ledger: approve: empty account: %w", errs.ErrInvalidArgument)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: approve %s -> %s: %w", owner, spender, errs.ErrInsufficientAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.allowances[owner]
	if m == nil {
		m = make(map[string]*big.Int)
		l.allowances[owner] = m
	}
	if amount.Sign() == 0 {
		delete(m, spender)
	} else {
		m[spender] = new(big.Int).Set(amount)
	}
	return nil
}

// Transfer moves amount from one account to another, deducting transfer
// fees unless either side is a safe.
func (l *Ledger) Transfer(from, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

// TransferFrom is the delegated path: spender moves amount out of from
// within the allowance from granted it.
func (l *Ledger) TransferFrom(spender, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer from %s: %w", from, errs.ErrInsufficientAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := l.allowances[from][spender]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: %s spending %s of %s: %w", spender, amount, from, errs.ErrAllowanceExceeded)
	}
	if err := l.transfer(from, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	if allowed.Sign() == 0 {
		delete(l.allowances[from], spender)
	}
	return nil
}

func (l *Ledger) transfer(from, to string, amount *big.Int) error {
	if from == "" || to == "" {
		return fmt.Errorf("ledger: transfer: empty account: %w", errs.ErrInvalidArgument)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer %s -> %s: %w", from, to, errs.ErrInsufficientAmount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal := l.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: transfer %s -> %s amount %s balance %s: %w", from, to, amount, bal, errs.ErrInsufficientBalance)
	}
	sender := l.configFor(from)
	if limit := sender.MaxTransferAmount; limit != nil && limit.Sign() > 0 && amount.Cmp(limit) > 0 {
		return fmt.Errorf("ledger: transfer %s -> %s amount %s above max %s: %w", from, to, amount, limit, errs.ErrTransferLimit)
	}
	remaining := new(big.Int).Sub(bal, amount)
	if hold := sender.MinHolding; hold != nil && remaining.Sign() > 0 && remaining.Cmp(hold) < 0 {
		return fmt.Errorf("ledger: transfer %s leaves %s below min holding %s: %w", from, remaining, hold, errs.ErrTransferLimit)
	}

	burn, fund := big.NewInt(0), big.NewInt(0)
	if !l.safes[from] && !l.safes[to] {
		receiver := l.configFor(to)
		burn = bps(amount, sender.SenderBurnBasisPoints+receiver.ReceiverBurnBasisPoints)
		fund = bps(amount, sender.SenderFundBasisPoints+receiver.ReceiverFundBasisPoints)
		if l.fund == "" {
			burn.Add(burn, fund)
			fund.SetInt64(0)
		}
	}
	received := new(big.Int).Sub(amount, burn)
	received.Sub(received, fund)

	if remaining.Sign() == 0 {
		l.debitAll(from)
	} else {
		l.debit(from, amount)
	}
	l.credit(to, received)
	if fund.Sign() > 0 {
		l.credit(l.fund, fund)
	}
	l.log.Debug("transfer",
		zap.String("from", from),
		zap.String("to", to),
		zap.Stringer("amount", amount),
		zap.Stringer("burn", burn),
		zap.Stringer("fund", fund))
	return nil
}

// Rebase contracts every normal balance by the elapsed whole intervals since
// the previous rebase. The sub-interval remainder carries over; intervals past
// MaxIntervalsPerRebase are dropped. It reports whether the divisor moved.
func (l *Ledger) Rebase() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clk.Now()
	elapsed := now.Sub(l.lastRebase)
	if elapsed < l.interval {
		return false
	}
	intervals := uint64(elapsed / l.interval)
	l.lastRebase = l.lastRebase.Add(time.Duration(intervals) * l.interval)
	if l.maxIntervals > 0 && intervals > l.maxIntervals {
		intervals = l.maxIntervals
	}
	if l.rebaseBps == 0 {
		return false
	}
	n := new(big.Int).SetUint64(intervals)
	mul := new(big.Int).Exp(big.NewInt(int64(BasisPointsDivisor+l.rebaseBps)), n, nil)
	div := new(big.Int).Exp(big.NewInt(BasisPointsDivisor), n, nil)
	next := new(big.Int).Mul(l.normalDivisor, mul)
	next.Quo(next, div)
	if l.maxDivisor != nil && next.Cmp(l.maxDivisor) > 0 {
		l.log.Warn("rebase skipped, divisor cap reached", zap.Stringer("next", next), zap.Stringer("max", l.maxDivisor))
		return false
	}
	before := l.totalSupply()
	l.normalDivisor = next
	l.rebaseCount++
	l.log.Info("rebase",
		zap.Uint64("intervals", intervals),
		zap.Stringer("divisor", next),
		zap.Stringer("burnt", new(big.Int).Sub(before, l.totalSupply())))
	return true
}

// Mint is restricted to the minter and bounded by the max supply.
func (l *Ledger) Mint(caller, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: mint: %w", errs.ErrInsufficientAmount)
	}
	if to == "" {
		return fmt.Errorf("ledger: mint: empty receiver: %w", errs.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.minter {
		return l.forbidden("mint", caller)
	}
	if l.maxSupply != nil {
		next := new(big.Int).Add(l.totalSupply(), amount)
		if next.Cmp(l.maxSupply) > 0 {
			return fmt.Errorf("ledger: mint %s exceeds max supply %s: %w", amount, l.maxSupply, errs.ErrInvalidArgument)
		}
	}
	l.credit(to, amount)
	l.log.Debug("mint", zap.String("to", to), zap.Stringer("amount", amount))
	return nil
}

// Burn destroys amount held by from. Only the floor may burn.
func (l *Ledger) Burn(caller, from string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: burn: %w", errs.ErrInsufficientAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.floor == "" || caller != l.floor {
		return l.forbidden("burn", caller)
	}
	bal := l.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: burn %s from %s balance %s: %w", amount, from, bal, errs.ErrInsufficientBalance)
	}
	if bal.Cmp(amount) == 0 {
		l.debitAll(from)
	} else {
		l.debit(from, amount)
	}
	l.log.Debug("burn", zap.String("from", from), zap.Stringer("amount", amount))
	return nil
}

func (l *Ledger) NormalDivisor() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.normalDivisor)
}

func (l *Ledger) SafeDivisor() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.safeDivisor)
}

func (l *Ledger) IsSafe(account string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.safes[account]
}

func (l *Ledger) LastRebaseTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRebase
}

func (l *Ledger) NextRebaseTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRebase.Add(l.interval)
}

func (l *Ledger) RebaseCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rebaseCount
}

func (l *Ledger) Gov() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gov
}

func (l *Ledger) Fund() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fund
}

func (l *Ledger) Floor() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.floor
}

// TransferConfigFor returns the effective rules of account and whether they
// come from a per-account override.
func (l *Ledger) TransferConfigFor(account string) (TransferConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.configs[account]
	if !ok {
		return l.defaultTransfer.clone(), false
	}
	return cfg.clone(), true
}

// Safes lists the exempt accounts in lexical order.
func (l *Ledger) Safes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.safes))
	for a := range l.safes {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Accounts lists accounts holding scaled units in lexical order.
func (l *Ledger) Accounts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.gons))
	for a := range l.gons {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) balanceOf(account string) *big.Int {
	g := l.gons[account]
	if g == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(g, l.divisorFor(account))
}

func (l *Ledger) totalSupply() *big.Int {
	total := new(big.Int).Quo(l.normalGons, l.normalDivisor)
	return total.Add(total, new(big.Int).Quo(l.safeGons, l.safeDivisor))
}

func (l *Ledger) divisorFor(account string) *big.Int {
	if l.safes[account] {
		return l.safeDivisor
	}
	return l.normalDivisor
}

func (l *Ledger) poolFor(account string) *big.Int {
	if l.safes[account] {
		return l.safeGons
	}
	return l.normalGons
}

func (l *Ledger) configFor(account string) TransferConfig {
	if cfg, ok := l.configs[account]; ok {
		return cfg
	}
	return l.defaultTransfer
}

func (l *Ledger) credit(account string, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	g := new(big.Int).Mul(amount, l.divisorFor(account))
	cur := l.gons[account]
	if cur == nil {
		cur = big.NewInt(0)
		l.gons[account] = cur
	}
	cur.Add(cur, g)
	pool := l.poolFor(account)
	pool.Add(pool, g)
}

// debit assumes the balance covers amount.
func (l *Ledger) debit(account string, amount *big.Int) {
	g := new(big.Int).Mul(amount, l.divisorFor(account))
	cur := l.gons[account]
	cur.Sub(cur, g)
	pool := l.poolFor(account)
	pool.Sub(pool, g)
}

// debitAll also drops the sub-unit dust left by rounding.
func (l *Ledger) debitAll(account string) {
	cur := l.gons[account]
	if cur == nil {
		return
	}
	pool := l.poolFor(account)
	pool.Sub(pool, cur)
	delete(l.gons, account)
}

func (l *Ledger) forbidden(op, caller string) error {
	l.log.Warn("forbidden", zap.String("op", op), zap.String("caller", caller))
	return fmt.Errorf("ledger: %s by %q: %w", op, caller, errs.ErrForbidden)
}

// bps returns amount*points/BasisPointsDivisor rounded toward zero.
func bps(amount *big.Int, points uint64) *big.Int {
	if points == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(points))
	return out.Quo(out, big.NewInt(BasisPointsDivisor))
}
