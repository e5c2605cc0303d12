// Package protocol assembles one protocol instance from a policy: a shared
// bank, the ledger, the floor, the time distributor and the burn vault, all on
// one clock.
//
// Components lock in a fixed order and never call back into a caller:
// vault -> floor -> ledger, vault -> distributor -> bank, floor -> bank.
package protocol

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/bank"
	"github.com/xvix-labs/xvix-floor/pkg/distributor"
	"github.com/xvix-labs/xvix-floor/pkg/floor"
	"github.com/xvix-labs/xvix-floor/pkg/ledger"
	"github.com/xvix-labs/xvix-floor/pkg/policy"
	"github.com/xvix-labs/xvix-floor/pkg/vault"
)

type Protocol struct {
	Policy *policy.Policy
	Clock  clock.Clock

	Bank        *bank.Bank
	Ledger      *ledger.Ledger
	Floor       *floor.Floor
	Distributor *distributor.Distributor
	Vault       *vault.Vault

	// mu orders whole-protocol views against multi-step updates. Vault
	// operations read the ledger divisor and then move ledger balances, so
	// while a rebase can run they must go through the methods below or
	// Update.
	mu  sync.RWMutex
	log *zap.Logger
}

// New builds and wires every component described by p. A nil clk uses the
// wall clock; a nil log discards output.
func New(p *policy.Policy, clk clock.Clock, log *zap.Logger) (*Protocol, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := ledgerConfig(p)
	if err != nil {
		return nil, err
	}
	cfg.Clock = clk
	cfg.Logger = log

	gov := p.Accounts.Gov
	pr := &Protocol{Policy: p, Clock: clk, Bank: bank.New(log.Named("bank")), log: log}
	if pr.Ledger, err = ledger.New(cfg); err != nil {
		return nil, err
	}
	if pr.Floor, err = floor.New(floor.Config{
		Account:           p.Accounts.Floor,
		Gov:               gov,
		RefundBasisPoints: p.Floor.RefundBasisPoints,
		Logger:            log,
	}, pr.Ledger, pr.Bank); err != nil {
		return nil, err
	}
	if pr.Distributor, err = distributor.New(distributor.Config{
		Account: p.Accounts.Distributor,
		Gov:     gov,
		Clock:   clk,
		Logger:  log,
	}, pr.Bank); err != nil {
		return nil, err
	}
	if pr.Vault, err = vault.New(vault.Config{
		Account:              p.Accounts.Vault,
		Gov:                  gov,
		BurnShareBasisPoints: p.Vault.BurnShareBasisPoints,
		Logger:               log,
	}, pr.Ledger, pr.Floor, pr.Bank); err != nil {
		return nil, err
	}
	if err := pr.wire(); err != nil {
		return nil, err
	}
	if err := pr.genesis(); err != nil {
		return nil, err
	}
	log.Info("protocol ready",
		zap.String("symbol", p.Token.Symbol),
		zap.Stringer("supply", pr.Ledger.TotalSupply()),
		zap.Stringer("reserve", pr.Floor.Reserve()),
		zap.Stringer("distributor_funds", pr.Distributor.Funds()))
	return pr, nil
}

func (pr *Protocol) wire() error {
	gov := pr.Policy.Accounts.Gov
	va := pr.Vault.Account()
	steps := []struct {
		name string
		run  func() error
	}{
		{"set floor", func() error { return pr.Ledger.SetFloor(gov, pr.Floor.Account()) }},
		{"vault safe", func() error { return pr.Ledger.CreateSafe(gov, va) }},
		{"vault transfer config", func() error { return pr.Ledger.SetTransferConfig(gov, va, ledger.TransferConfig{}) }},
		{"vault refunder", func() error { return pr.Floor.AddRefunder(gov, va) }},
		{"vault distributor", func() error { return pr.Vault.SetDistributor(gov, pr.Distributor) }},
		{"vault sender", func() error { return pr.Vault.AddSender(gov, gov) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("protocol: %s: %w", s.name, err)
		}
	}
	for _, safe := range pr.Policy.Safes {
		if safe == va {
			continue
		}
		if err := pr.Ledger.CreateSafe(gov, safe); err != nil {
			return fmt.Errorf("protocol: safe %s: %w", safe, err)
		}
	}
	return nil
}

// genesis credits the configured reserve and distributor funds and installs
// the configured streams.
func (pr *Protocol) genesis() error {
	p := pr.Policy
	credits := []struct{ account, amount string }{
		{pr.Floor.Account(), p.Floor.Reserve},
		{pr.Distributor.Account(), p.Distributor.Funds},
	}
	for _, c := range credits {
		v, err := p.Amount(c.amount)
		if err != nil {
			return err
		}
		if v == nil || v.Sign() == 0 {
			continue
		}
		if err := pr.Bank.Credit(c.account, v); err != nil {
			return fmt.Errorf("protocol: genesis credit %s: %w", c.account, err)
		}
	}
	if len(p.Distributor.Streams) == 0 {
		return nil
	}
	names := make([]string, len(p.Distributor.Streams))
	rates := make([]*big.Int, len(p.Distributor.Streams))
	for i, s := range p.Distributor.Streams {
		rate, err := p.Amount(s.Rate)
		if err != nil {
			return err
		}
		names[i], rates[i] = s.Beneficiary, rate
	}
	if err := pr.Distributor.SetDistribution(p.Accounts.Gov, names, rates); err != nil {
		return fmt.Errorf("protocol: genesis streams: %w", err)
	}
	return nil
}

// View runs fn while no Update is in progress, so that fn reads every
// component at one consistent point.
func (pr *Protocol) View(fn func() error) error {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return fn()
}

// Update runs fn exclusively of every View and other Update.
func (pr *Protocol) Update(fn func() error) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return fn()
}

// Rebase runs the ledger rebase and reports whether the divisor moved.
func (pr *Protocol) Rebase() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	moved := pr.Ledger.Rebase()
	if moved {
		pr.log.Debug("rebased",
			zap.Uint64("count", pr.Ledger.RebaseCount()),
			zap.Stringer("divisor", pr.Ledger.NormalDivisor()),
			zap.Stringer("vault_divisor", pr.Vault.Divisor()))
	}
	return moved
}

// Deposit moves amount of caller's ledger balance into the vault.
func (pr *Protocol) Deposit(caller string, amount *big.Int) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.Vault.Deposit(caller, amount)
}

// Withdraw pays amount of caller's vault balance out to to, settling
// distributor rewards first.
func (pr *Protocol) Withdraw(caller, to string, amount *big.Int) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.Vault.Withdraw(caller, to, amount)
}

func (pr *Protocol) WithdrawWithoutDistribution(caller, to string, amount *big.Int) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.Vault.WithdrawWithoutDistribution(caller, to, amount)
}

func (pr *Protocol) Claim(caller, to string) (*big.Int, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.Vault.Claim(caller, to)
}

func (pr *Protocol) Refund(caller, to string) (*big.Int, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.Vault.Refund(caller, to)
}

// Amount parses a human amount at the token's decimals.
func (pr *Protocol) Amount(s string) (*big.Int, error) {
	v, err := pr.Policy.Amount(s)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("protocol: empty amount")
	}
	return v, nil
}

func (pr *Protocol) Decimals() int32 { return pr.Policy.Token.Decimals }

func ledgerConfig(p *policy.Policy) (ledger.Config, error) {
	var cfg ledger.Config
	var err error
	if cfg.InitialSupply, err = p.Amount(p.Token.InitialSupply); err != nil {
		return cfg, err
	}
	if cfg.MaxSupply, err = p.Amount(p.Token.MaxSupply); err != nil {
		return cfg, err
	}
	if cfg.InitialDivisor, err = policy.Integer(p.Rebase.InitialDivisor); err != nil {
		return cfg, err
	}
	if p.Rebase.MaxDivisor != "" {
		if cfg.MaxDivisor, err = policy.Integer(p.Rebase.MaxDivisor); err != nil {
			return cfg, err
		}
	}
	t := p.Transfer
	cfg.DefaultTransfer = ledger.TransferConfig{
		SenderBurnBasisPoints:   t.SenderBurnBasisPoints,
		SenderFundBasisPoints:   t.SenderFundBasisPoints,
		ReceiverBurnBasisPoints: t.ReceiverBurnBasisPoints,
		ReceiverFundBasisPoints: t.ReceiverFundBasisPoints,
	}
	if cfg.DefaultTransfer.MaxTransferAmount, err = p.Amount(t.MaxTransferAmount); err != nil {
		return cfg, err
	}
	if cfg.DefaultTransfer.MinHolding, err = p.Amount(t.MinHolding); err != nil {
		return cfg, err
	}
	cfg.Gov = p.Accounts.Gov
	cfg.Fund = p.Accounts.Fund
	cfg.RebaseInterval = p.Rebase.Interval.Std()
	cfg.RebaseBasisPoints = p.Rebase.BasisPoints
	cfg.MaxIntervalsPerRebase = p.Rebase.MaxIntervals
	return cfg, nil
}
