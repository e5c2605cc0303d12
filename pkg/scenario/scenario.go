// Package scenario replays scripted protocol operations on a mock clock and
// checks expectations between steps. Amounts in a scenario are human decimal
// strings at the policy's token decimals.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xvix-labs/xvix-floor/internal/units"
	"github.com/xvix-labs/xvix-floor/pkg/errs"
	"github.com/xvix-labs/xvix-floor/pkg/policy"
	"github.com/xvix-labs/xvix-floor/pkg/protocol"
	"github.com/xvix-labs/xvix-floor/pkg/supply"
	"github.com/xvix-labs/xvix-floor/pkg/types"
)

// ErrExpectation marks a failed expect step.
var ErrExpectation = errors.New("expectation failed")

type Scenario struct {
	// Policy overrides policy.Default field by field.
	Policy yaml.Node `yaml:"policy,omitempty"`
	Steps  []Step    `yaml:"steps"`
}

type Step struct {
	Op      string `yaml:"op"`
	From    string `yaml:"from,omitempty"`
	To      string `yaml:"to,omitempty"`
	Spender string `yaml:"spender,omitempty"`
	Amount  string `yaml:"amount,omitempty"`
	// Duration is the clock advance of an advance step.
	Duration policy.Duration `yaml:"duration,omitempty"`
	// Streams is the full table of a set_distribution step.
	Streams []policy.Stream `yaml:"streams,omitempty"`
	Expect  *Expect         `yaml:"expect,omitempty"`
	// Error names the failure the step must produce, e.g. "forbidden".
	Error string `yaml:"error,omitempty"`
}

// Expect compares figures of Account, or protocol-wide figures when they do
// not name an account. Empty fields are not checked.
type Expect struct {
	Account          string `yaml:"account,omitempty"`
	LedgerBalance    string `yaml:"ledger_balance,omitempty"`
	VaultBalance     string `yaml:"vault_balance,omitempty"`
	BankBalance      string `yaml:"bank_balance,omitempty"`
	PendingBurn      string `yaml:"pending_burn,omitempty"`
	TotalShareSupply string `yaml:"total_share_supply,omitempty"`
	TotalSupply      string `yaml:"total_supply,omitempty"`
	Reserve          string `yaml:"reserve,omitempty"`
}

type StepResult struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	At     string `json:"at"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Report struct {
	Steps    []StepResult            `json:"steps"`
	Snapshot *types.ProtocolSnapshot `json:"snapshot,omitempty"`
}

var sentinels = map[string]error{
	"insufficient_amount":  errs.ErrInsufficientAmount,
	"insufficient_balance": errs.ErrInsufficientBalance,
	"allowance_exceeded":   errs.ErrAllowanceExceeded,
	"insufficient_reserve": errs.ErrInsufficientReserve,
	"forbidden":            errs.ErrForbidden,
	"already_initialized":  errs.ErrAlreadyInitialized,
	"transfer_limit":       errs.ErrTransferLimit,
	"invalid_argument":     errs.ErrInvalidArgument,
}

func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario: empty document")
		}
		return nil, fmt.Errorf("scenario: %w", err)
	}
	for i, s := range sc.Steps {
		if s.Error != "" {
			if _, ok := sentinels[s.Error]; !ok {
				return nil, fmt.Errorf("scenario: step %d: unknown error %q", i, s.Error)
			}
		}
	}
	return &sc, nil
}

// PolicyOrDefault resolves the scenario's policy over the defaults.
func (sc *Scenario) PolicyOrDefault() (*policy.Policy, error) {
	if sc.Policy.Kind == 0 {
		return policy.Default(), nil
	}
	b, err := yaml.Marshal(&sc.Policy)
	if err != nil {
		return nil, err
	}
	return policy.Parse(b)
}

type Runner struct {
	pr  *protocol.Protocol
	clk *clock.Mock
	log *zap.Logger
}

// NewRunner builds a fresh protocol for sc on a mock clock.
func NewRunner(sc *Scenario, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p, err := sc.PolicyOrDefault()
	if err != nil {
		return nil, err
	}
	clk := clock.NewMock()
	pr, err := protocol.New(p, clk, log)
	if err != nil {
		return nil, err
	}
	return &Runner{pr: pr, clk: clk, log: log}, nil
}

func (r *Runner) Protocol() *protocol.Protocol { return r.pr }

// Run executes every step in order. It stops at the first unexpected error
// or failed expectation and returns the report up to that step.
func (r *Runner) Run(sc *Scenario) (*Report, error) {
	rep := &Report{Steps: make([]StepResult, 0, len(sc.Steps))}
	for i, s := range sc.Steps {
		var result string
		err := r.pr.Update(func() error {
			var err error
			result, err = r.apply(s)
			return err
		})
		res := StepResult{Index: i, Op: s.Op, At: r.clk.Now().UTC().Format(time.RFC3339), Result: result}
		if err != nil {
			res.Error = err.Error()
		}
		rep.Steps = append(rep.Steps, res)
		if err := r.check(s, err); err != nil {
			r.log.Warn("scenario stopped", zap.Int("step", i), zap.String("op", s.Op), zap.Error(err))
			return rep, fmt.Errorf("scenario: step %d (%s): %w", i, s.Op, err)
		}
		r.log.Debug("step", zap.Int("step", i), zap.String("op", s.Op), zap.String("result", result))
	}
	snap, err := supply.NewComputer(r.pr).ComputeSnapshot()
	if err != nil {
		return rep, err
	}
	rep.Snapshot = snap
	return rep, nil
}

func (r *Runner) check(s Step, err error) error {
	if s.Error == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("want %s, got success", s.Error)
	}
	if !errors.Is(err, sentinels[s.Error]) {
		return fmt.Errorf("want %s: %w", s.Error, err)
	}
	return nil
}

func (r *Runner) apply(s Step) (string, error) {
	pr := r.pr
	switch s.Op {
	case "transfer":
		return r.withAmount(s, func(a *big.Int) error {
			if s.Spender != "" {
				return pr.Ledger.TransferFrom(s.Spender, s.From, s.To, a)
			}
			return pr.Ledger.Transfer(s.From, s.To, a)
		})
	case "approve":
		return r.withAmount(s, func(a *big.Int) error {
			return pr.Ledger.Approve(s.From, s.Spender, a)
		})
	case "deposit":
		return r.withAmount(s, func(a *big.Int) error {
			return pr.Vault.Deposit(s.From, a)
		})
	case "withdraw", "withdraw_without_distribution":
		to := s.To
		if to == "" {
			to = s.From
		}
		var a *big.Int
		if s.Amount == "all" {
			a = pr.Vault.BalanceOf(s.From)
		} else {
			var err error
			if a, err = r.amount(s.Amount); err != nil {
				return "", err
			}
		}
		if s.Op == "withdraw" {
			return r.format(a), pr.Vault.Withdraw(s.From, to, a)
		}
		return r.format(a), pr.Vault.WithdrawWithoutDistribution(s.From, to, a)
	case "claim":
		to := s.To
		if to == "" {
			to = s.From
		}
		paid, err := pr.Vault.Claim(s.From, to)
		return r.format(paid), err
	case "refund":
		paid, err := pr.Vault.Refund(s.From, s.To)
		return r.format(paid), err
	case "rebase":
		if pr.Ledger.Rebase() {
			return "rebased", nil
		}
		return "unchanged", nil
	case "advance":
		if s.Duration <= 0 {
			return "", fmt.Errorf("advance needs a positive duration: %w", errs.ErrInvalidArgument)
		}
		r.clk.Add(s.Duration.Std())
		return s.Duration.Std().String(), nil
	case "fund_floor":
		return r.withAmount(s, func(a *big.Int) error {
			if s.From == "" {
				return pr.Bank.Credit(pr.Floor.Account(), a)
			}
			return pr.Floor.Fund(s.From, a)
		})
	case "fund_distributor":
		return r.withAmount(s, func(a *big.Int) error {
			if s.From == "" {
				return pr.Bank.Credit(pr.Distributor.Account(), a)
			}
			return pr.Bank.Transfer(s.From, pr.Distributor.Account(), a)
		})
	case "set_distribution":
		names := make([]string, len(s.Streams))
		rates := make([]*big.Int, len(s.Streams))
		for i, st := range s.Streams {
			rate, err := r.amount(st.Rate)
			if err != nil {
				return "", err
			}
			names[i], rates[i] = st.Beneficiary, rate
		}
		caller := s.From
		if caller == "" {
			caller = pr.Policy.Accounts.Gov
		}
		return "", pr.Distributor.SetDistribution(caller, names, rates)
	case "expect":
		if s.Expect == nil {
			return "", fmt.Errorf("expect step without expect: %w", errs.ErrInvalidArgument)
		}
		return "", r.expect(*s.Expect)
	default:
		return "", fmt.Errorf("unknown op %q: %w", s.Op, errs.ErrInvalidArgument)
	}
}

func (r *Runner) withAmount(s Step, fn func(*big.Int) error) (string, error) {
	a, err := r.amount(s.Amount)
	if err != nil {
		return "", err
	}
	return r.format(a), fn(a)
}

func (r *Runner) amount(s string) (*big.Int, error) {
	return r.pr.Amount(s)
}

func (r *Runner) format(v *big.Int) string {
	if v == nil {
		return ""
	}
	return units.Format(v, r.pr.Decimals())
}

func (r *Runner) expect(e Expect) error {
	pr := r.pr
	checks := []struct {
		name, want string
		got        func() *big.Int
	}{
		{"ledger_balance", e.LedgerBalance, func() *big.Int { return pr.Ledger.BalanceOf(e.Account) }},
		{"vault_balance", e.VaultBalance, func() *big.Int { return pr.Vault.BalanceOf(e.Account) }},
		{"bank_balance", e.BankBalance, func() *big.Int { return pr.Bank.BalanceOf(e.Account) }},
		{"pending_burn", e.PendingBurn, pr.Vault.PendingBurn},
		{"total_share_supply", e.TotalShareSupply, pr.Vault.TotalShareSupply},
		{"total_supply", e.TotalSupply, pr.Ledger.TotalSupply},
		{"reserve", e.Reserve, pr.Floor.Reserve},
	}
	for _, c := range checks {
		if c.want == "" {
			continue
		}
		want, err := units.Parse(c.want, pr.Decimals())
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		if got := c.got(); got.Cmp(want) != 0 {
			return fmt.Errorf("%s %s: want %s, got %s: %w",
				e.Account, c.name, c.want, r.format(got), ErrExpectation)
		}
	}
	return nil
}
