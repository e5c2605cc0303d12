// Package vault implements the burn vault: holders deposit ledger units and
// see them decay at a reduced rate, while the difference between what the
// vault holds and what it owes depositors accumulates as pending burn that an
// authorized sender redeems against the floor.
//
// Depositor positions are virtual shares ("gons") priced at a vault divisor
// that trails the ledger's normal divisor by the burn share:
//
//	vaultDivisor = base + (normalDivisor - base) * burnShare / 10000
//
// so every position decays in lockstep without touching each depositor.
package vault

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/distributor"
	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

const (
	// BasisPointsDivisor is the denominator of every basis point figure.
	BasisPointsDivisor = 10000
	// DefaultBurnShareBasisPoints lets vault positions decay at half the
	// ledger rate.
	DefaultBurnShareBasisPoints = 5000
)

// rewardPrecision scales the cumulative reward per gon.
var rewardPrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)

// Ledger is the asset the vault holds. The vault account is expected to be a
// safe so deposits and withdrawals move at face value.
type Ledger interface {
	BalanceOf(account string) *big.Int
	NormalDivisor() *big.Int
	Transfer(from, to string, amount *big.Int) error
	TransferFrom(spender, from, to string, amount *big.Int) error
}

// Floor buys back the vault's pending burn for base currency.
type Floor interface {
	GetRefundAmount(burned *big.Int) *big.Int
	Refund(caller, to string, burned *big.Int) (*big.Int, error)
}

// Distributor streams base currency rewards to the vault account. A nil
// Distributor stops new rewards; rewards already pulled stay claimable.
type Distributor interface {
	Claim(beneficiary, to string) (distributor.Payout, error)
}

// Bank holds the rewards pulled from the distributor until depositors claim.
type Bank interface {
	BalanceOf(account string) *big.Int
	Transfer(from, to string, amount *big.Int) error
}

// Config names the vault's accounts and its decay rate.
type Config struct {
	// Account is the vault's identity on the ledger, in the bank and as a
	// distributor beneficiary.
	Account string
	// Gov administers the vault and may refund.
	Gov string
	// BurnShareBasisPoints is the share of the ledger's rebase that vault
	// positions take; zero selects DefaultBurnShareBasisPoints.
	BurnShareBasisPoints uint64
	Logger               *zap.Logger
}

type Vault struct {
	mu        sync.Mutex
	account   string
	gov       string
	burnShare uint64
	base      *big.Int

	gons      map[string]*big.Int
	totalGons *big.Int
	senders   map[string]bool

	rewardPerGon     *big.Int
	userRewardPerGon map[string]*big.Int
	claimable        map[string]*big.Int
	unallocated      *big.Int

	deposited *big.Int
	withdrawn *big.Int
	refunded  *big.Int

	ledger Ledger
	floor  Floor
	dist   Distributor
	bank   Bank
	log    *zap.Logger
}

// New creates a vault whose base divisor is the ledger's current normal
// divisor.
func New(cfg Config, l Ledger, f Floor, b Bank) (*Vault, error) {
	if cfg.Account == "" || cfg.Gov == "" {
		return nil, fmt.Errorf("vault: account and governor are required: %w", errs.ErrInvalidArgument)
	}
	if cfg.BurnShareBasisPoints == 0 {
		cfg.BurnShareBasisPoints = DefaultBurnShareBasisPoints
	}
	if cfg.BurnShareBasisPoints > BasisPointsDivisor {
		return nil, fmt.Errorf("vault: burn share %d: %w", cfg.BurnShareBasisPoints, errs.ErrInvalidArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Vault{
		account:          cfg.Account,
		gov:              cfg.Gov,
		burnShare:        cfg.BurnShareBasisPoints,
		base:             l.NormalDivisor(),
		gons:             make(map[string]*big.Int),
		totalGons:        big.NewInt(0),
		senders:          make(map[string]bool),
		rewardPerGon:     big.NewInt(0),
		userRewardPerGon: make(map[string]*big.Int),
		claimable:        make(map[string]*big.Int),
		unallocated:      big.NewInt(0),
		deposited:        big.NewInt(0),
		withdrawn:        big.NewInt(0),
		refunded:         big.NewInt(0),
		ledger:           l,
		floor:            f,
		bank:             b,
		log:              cfg.Logger.Named("vault"),
	}, nil
}

// Deposit pulls amount from caller through the ledger allowance the caller
// granted the vault and credits what arrived as a new share.
func (v *Vault) Deposit(caller string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("vault: deposit: %w", errs.ErrInsufficientAmount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	before := v.ledger.BalanceOf(v.account)
	if err := v.ledger.TransferFrom(v.account, caller, v.account, amount); err != nil {
		return fmt.Errorf("vault: deposit by %s: %w", caller, err)
	}
	received := new(big.Int).Sub(v.ledger.BalanceOf(v.account), before)
	if received.Cmp(amount) != 0 {
		v.log.Warn("deposit arrived short of amount",
			zap.String("caller", caller),
			zap.Stringer("amount", amount),
			zap.Stringer("received", received))
	}
	if received.Sign() <= 0 {
		return nil
	}

	v.pull()
	v.accrue(caller)
	g := new(big.Int).Mul(received, v.divisor())
	v.addGons(caller, g)
	v.deposited.Add(v.deposited, received)
	v.log.Debug("deposit", zap.String("account", caller), zap.Stringer("amount", received))
	return nil
}

// Withdraw settles caller's pending distributor reward and sends amount of
// the underlying asset to to.
func (v *Vault) Withdraw(caller, to string, amount *big.Int) error {
	return v.withdraw(caller, to, amount, true)
}

// WithdrawWithoutDistribution withdraws without contacting the distributor.
// Rewards already pulled into the vault still accrue to caller; anything the
// distributor has streamed since the last pull is shared by the depositors
// that remain.
func (v *Vault) WithdrawWithoutDistribution(caller, to string, amount *big.Int) error {
	return v.withdraw(caller, to, amount, false)
}

func (v *Vault) withdraw(caller, to string, amount *big.Int, distribute bool) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("vault: withdraw: %w", errs.ErrInsufficientAmount)
	}
	if to == "" {
		return fmt.Errorf("vault: withdraw by %s: empty receiver: %w", caller, errs.ErrInvalidArgument)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	div := v.divisor()
	held := v.gons[caller]
	bal := balance(held, div)
	if amount.Cmp(bal) > 0 {
		return fmt.Errorf("vault: withdraw %s by %s with share %s: %w", amount, caller, bal, errs.ErrInsufficientBalance)
	}
	if distribute {
		v.pull()
	}
	v.accrue(caller)
	if err := v.ledger.Transfer(v.account, to, amount); err != nil {
		return fmt.Errorf("vault: withdraw by %s: %w", caller, err)
	}
	if amount.Cmp(bal) == 0 {
		v.subGons(caller, held)
	} else {
		v.subGons(caller, new(big.Int).Mul(amount, div))
	}
	v.withdrawn.Add(v.withdrawn, amount)
	v.log.Debug("withdraw",
		zap.String("account", caller),
		zap.String("to", to),
		zap.Stringer("amount", amount),
		zap.Bool("distribution", distribute))
	return nil
}

// Claim pays caller's accumulated distributor reward to to. Rewards already
// pulled into the vault stay claimable after the distributor is detached.
func (v *Vault) Claim(caller, to string) (*big.Int, error) {
	if to == "" {
		return nil, fmt.Errorf("vault: claim by %s: empty receiver: %w", caller, errs.ErrInvalidArgument)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pull()
	v.accrue(caller)
	amount := v.claimable[caller]
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := v.bank.Transfer(v.account, to, amount); err != nil {
		return nil, fmt.Errorf("vault: claim by %s: %w", caller, err)
	}
	delete(v.claimable, caller)
	if v.gons[caller] == nil {
		delete(v.userRewardPerGon, caller)
	}
	v.log.Debug("claim", zap.String("account", caller), zap.String("to", to), zap.Stringer("amount", amount))
	return amount, nil
}

// Refund redeems the whole pending burn against the floor, paying to. A zero
// pending burn pays zero without calling the floor.
func (v *Vault) Refund(caller, to string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.gov && !v.senders[caller] {
		return nil, v.forbidden("refund", caller)
	}
	pending := v.pendingBurn()
	if pending.Sign() == 0 {
		return big.NewInt(0), nil
	}
	paid, err := v.floor.Refund(v.account, to, pending)
	if err != nil {
		return nil, fmt.Errorf("vault: refund %s: %w", pending, err)
	}
	v.refunded.Add(v.refunded, pending)
	v.log.Info("refund",
		zap.String("caller", caller),
		zap.String("to", to),
		zap.Stringer("burned", pending),
		zap.Stringer("paid", paid))
	return paid, nil
}

// pull claims the vault's own distributor stream, if any, and spreads it
// together with anything left unallocated over the current gons.
func (v *Vault) pull() {
	if v.dist != nil {
		p, err := v.dist.Claim(v.account, v.account)
		if err != nil {
			v.log.Warn("distributor claim failed", zap.Error(err))
		} else if p.Paid != nil && p.Paid.Sign() > 0 {
			v.unallocated.Add(v.unallocated, p.Paid)
		}
	}
	if v.unallocated.Sign() == 0 || v.totalGons.Sign() == 0 {
		return
	}
	inc := new(big.Int).Mul(v.unallocated, rewardPrecision)
	inc.Quo(inc, v.totalGons)
	v.rewardPerGon.Add(v.rewardPerGon, inc)
	v.unallocated.SetInt64(0)
}

// accrue moves account's share of rewards pulled since its last touch into
// its claimable balance.
func (v *Vault) accrue(account string) {
	owed := v.owed(account)
	if owed.Sign() > 0 {
		c := v.claimable[account]
		if c == nil {
			c = big.NewInt(0)
			v.claimable[account] = c
		}
		c.Add(c, owed)
	}
	v.userRewardPerGon[account] = new(big.Int).Set(v.rewardPerGon)
}

func (v *Vault) owed(account string) *big.Int {
	g := v.gons[account]
	if g == nil {
		return big.NewInt(0)
	}
	delta := new(big.Int).Set(v.rewardPerGon)
	if paid := v.userRewardPerGon[account]; paid != nil {
		delta.Sub(delta, paid)
	}
	delta.Mul(delta, g)
	return delta.Quo(delta, rewardPrecision)
}

func (v *Vault) addGons(account string, g *big.Int) {
	cur := v.gons[account]
	if cur == nil {
		cur = big.NewInt(0)
		v.gons[account] = cur
	}
	cur.Add(cur, g)
	v.totalGons.Add(v.totalGons, g)
}

func (v *Vault) subGons(account string, g *big.Int) {
	v.totalGons.Sub(v.totalGons, g)
	cur := v.gons[account]
	cur.Sub(cur, g)
	if cur.Sign() == 0 {
		delete(v.gons, account)
		delete(v.userRewardPerGon, account)
	}
}

// divisor prices gons at burnShare of the ledger's decay since the vault
// was created.
func (v *Vault) divisor() *big.Int {
	normal := v.ledger.NormalDivisor()
	d := new(big.Int).Sub(normal, v.base)
	d.Mul(d, new(big.Int).SetUint64(v.burnShare))
	d.Quo(d, big.NewInt(BasisPointsDivisor))
	return d.Add(d, v.base)
}

func (v *Vault) totalShareSupply() *big.Int {
	return balance(v.totalGons, v.divisor())
}

// pendingBurn is what the vault holds beyond what it owes depositors.
func (v *Vault) pendingBurn() *big.Int {
	held := v.ledger.BalanceOf(v.account)
	owed := v.totalShareSupply()
	gap := new(big.Int).Sub(held, owed)
	if gap.Sign() < 0 {
		v.log.Warn("vault holds less than its shares",
			zap.Stringer("held", held),
			zap.Stringer("shares", owed))
		return big.NewInt(0)
	}
	return gap
}

func (v *Vault) forbidden(op, caller string) error {
	v.log.Warn("forbidden", zap.String("op", op), zap.String("caller", caller))
	return fmt.Errorf("vault: %s by %q: %w", op, caller, errs.ErrForbidden)
}

func balance(g, div *big.Int) *big.Int {
	if g == nil || div.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(g, div)
}

func (v *Vault) SetGov(caller, account string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.gov {
		return v.forbidden("set gov", caller)
	}
	if account == "" {
		return fmt.Errorf("vault: set gov: empty account: %w", errs.ErrInvalidArgument)
	}
	v.gov = account
	return nil
}

// SetDistributor installs d; nil detaches the current one. Rewards the old
// distributor streamed but the vault never pulled stay with it.
func (v *Vault) SetDistributor(caller string, d Distributor) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.gov {
		return v.forbidden("set distributor", caller)
	}
	v.dist = d
	return nil
}

func (v *Vault) AddSender(caller, account string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.gov {
		return v.forbidden("add sender", caller)
	}
	if account == "" {
		return fmt.Errorf("vault: add sender: empty account: %w", errs.ErrInvalidArgument)
	}
	v.senders[account] = true
	return nil
}

func (v *Vault) RemoveSender(caller, account string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.gov {
		return v.forbidden("remove sender", caller)
	}
	delete(v.senders, account)
	return nil
}

// BalanceOf is account's decay-adjusted share.
func (v *Vault) BalanceOf(account string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return balance(v.gons[account], v.divisor())
}

func (v *Vault) TotalShareSupply() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalShareSupply()
}

func (v *Vault) PendingBurn() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingBurn()
}

// RefundValue is what a refund would pay right now.
func (v *Vault) RefundValue() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.floor.GetRefundAmount(v.pendingBurn())
}

// Held is the vault's balance on the ledger.
func (v *Vault) Held() *big.Int {
	return v.ledger.BalanceOf(v.account)
}

func (v *Vault) Divisor() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.divisor()
}

// Claimable is account's reward as of the last pull from the distributor.
func (v *Vault) Claimable(account string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.owed(account)
	if c := v.claimable[account]; c != nil {
		out.Add(out, c)
	}
	return out
}

// Depositors lists accounts with an open position in lexical order.
func (v *Vault) Depositors() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.gons))
	for a := range v.gons {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (v *Vault) Account() string { return v.account }

func (v *Vault) Gov() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gov
}

func (v *Vault) HasDistributor() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dist != nil
}

func (v *Vault) IsSender(account string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.senders[account]
}

func (v *Vault) Senders() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.senders))
	for a := range v.senders {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (v *Vault) TotalDeposited() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.deposited)
}

func (v *Vault) TotalWithdrawn() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.withdrawn)
}

// TotalRefunded is the cumulative pending burn redeemed at the floor.
func (v *Vault) TotalRefunded() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.refunded)
}

func (v *Vault) BurnShareBasisPoints() uint64 { return v.burnShare }
