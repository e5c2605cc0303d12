package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xvix-labs/xvix-floor/internal/units"
)

// Policy is the full parameter set of one protocol instance. Amounts are
// human decimal strings at Token.Decimals; durations are Go duration strings.
type Policy struct {
	Token       Token       `yaml:"token"`
	Accounts    Accounts    `yaml:"accounts"`
	Rebase      Rebase      `yaml:"rebase"`
	Transfer    Transfer    `yaml:"transfer"`
	Floor       Floor       `yaml:"floor"`
	Vault       Vault       `yaml:"vault"`
	Distributor Distributor `yaml:"distributor"`

	// Safes are extra accounts exempt from rebases and transfer fees. The
	// vault is always a safe.
	Safes []string `yaml:"safes,omitempty"`

	// NonCirculating lists cohorts reported outside circulating supply in
	// addition to safes and the fund account.
	NonCirculating []Cohort `yaml:"non_circulating,omitempty"`
}

type Token struct {
	Symbol        string `yaml:"symbol"`
	Decimals      int32  `yaml:"decimals"`
	InitialSupply string `yaml:"initial_supply"`
	MaxSupply     string `yaml:"max_supply,omitempty"`
}

// Accounts names the protocol's own identities.
type Accounts struct {
	Gov         string `yaml:"gov"`
	Fund        string `yaml:"fund,omitempty"`
	Floor       string `yaml:"floor"`
	Vault       string `yaml:"vault"`
	Distributor string `yaml:"distributor"`
}

type Rebase struct {
	Interval     Duration `yaml:"interval"`
	BasisPoints  uint64   `yaml:"basis_points"`
	MaxIntervals uint64   `yaml:"max_intervals_per_rebase"`
	// Divisors are raw integers, not token amounts.
	InitialDivisor string `yaml:"initial_divisor"`
	MaxDivisor     string `yaml:"max_divisor,omitempty"`
}

type Transfer struct {
	SenderBurnBasisPoints   uint64 `yaml:"sender_burn_basis_points"`
	SenderFundBasisPoints   uint64 `yaml:"sender_fund_basis_points"`
	ReceiverBurnBasisPoints uint64 `yaml:"receiver_burn_basis_points"`
	ReceiverFundBasisPoints uint64 `yaml:"receiver_fund_basis_points"`
	MaxTransferAmount       string `yaml:"max_transfer_amount,omitempty"`
	MinHolding              string `yaml:"min_holding,omitempty"`
}

type Floor struct {
	RefundBasisPoints uint64 `yaml:"refund_basis_points"`
	// Reserve is base currency credited to the floor at genesis.
	Reserve string `yaml:"reserve,omitempty"`
}

type Vault struct {
	BurnShareBasisPoints uint64 `yaml:"burn_share_basis_points"`
}

type Distributor struct {
	// Funds is base currency credited to the distributor at genesis.
	Funds   string   `yaml:"funds,omitempty"`
	Streams []Stream `yaml:"streams,omitempty"`
}

// Stream is one beneficiary's per-second rate in human base-currency units.
type Stream struct {
	Beneficiary string `yaml:"beneficiary"`
	Rate        string `yaml:"rate"`
}

type Cohort struct {
	Name     string   `yaml:"name"`
	Reason   string   `yaml:"reason,omitempty"`
	Accounts []string `yaml:"accounts"`
}

// Duration is a time.Duration that reads and writes as "1h30m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the reference parameters.
func Default() *Policy {
	return &Policy{
		Token: Token{
			Symbol:        "XVIX",
			Decimals:      18,
			InitialSupply: "1000",
			MaxSupply:     "2000",
		},
		Accounts: Accounts{
			Gov:         "gov",
			Fund:        "fund",
			Floor:       "floor",
			Vault:       "vault",
			Distributor: "distributor",
		},
		Rebase: Rebase{
			Interval:       Duration(time.Hour),
			BasisPoints:    2,
			MaxIntervals:   10,
			InitialDivisor: "100000000",
			MaxDivisor:     "100000000000000000",
		},
		Transfer: Transfer{
			ReceiverBurnBasisPoints: 43,
			ReceiverFundBasisPoints: 7,
		},
		Floor: Floor{RefundBasisPoints: 9000},
		Vault: Vault{BurnShareBasisPoints: 5000},
	}
}

// Load reads a YAML policy from path. Fields the file leaves out keep their
// Default values.
func Load(path string) (*Policy, error) {
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

// Parse decodes and validates a YAML policy document.
func Parse(b []byte) (*Policy, error) {
	p := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal renders the policy as YAML.
func (p *Policy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

func (p *Policy) Validate() error {
	if p == nil {
		return errors.New("nil policy")
	}
	if p.Token.Decimals < 0 || p.Token.Decimals > 36 {
		return fmt.Errorf("token.decimals %d out of range", p.Token.Decimals)
	}
	initial, err := p.Amount(p.Token.InitialSupply)
	if err != nil {
		return fmt.Errorf("token.initial_supply: %w", err)
	}
	if p.Token.MaxSupply != "" {
		ceiling, err := p.Amount(p.Token.MaxSupply)
		if err != nil {
			return fmt.Errorf("token.max_supply: %w", err)
		}
		if initial != nil && ceiling.Cmp(initial) < 0 {
			return fmt.Errorf("token.max_supply below initial_supply")
		}
	}

	a := p.Accounts
	seen := map[string]string{}
	for _, f := range []struct{ name, v string }{
		{"gov", a.Gov}, {"floor", a.Floor}, {"vault", a.Vault}, {"distributor", a.Distributor},
	} {
		if f.v == "" {
			return fmt.Errorf("accounts.%s missing", f.name)
		}
		if prev, ok := seen[f.v]; ok {
			return fmt.Errorf("accounts.%s reuses %q of accounts.%s", f.name, f.v, prev)
		}
		seen[f.v] = f.name
	}

	if p.Rebase.Interval <= 0 {
		return fmt.Errorf("rebase.interval must be positive")
	}
	if _, err := Integer(p.Rebase.InitialDivisor); err != nil {
		return fmt.Errorf("rebase.initial_divisor: %w", err)
	}
	if p.Rebase.MaxDivisor != "" {
		if _, err := Integer(p.Rebase.MaxDivisor); err != nil {
			return fmt.Errorf("rebase.max_divisor: %w", err)
		}
	}
	for _, bp := range []struct {
		name string
		v    uint64
	}{
		{"rebase.basis_points", p.Rebase.BasisPoints},
		{"transfer.sender_burn_basis_points", p.Transfer.SenderBurnBasisPoints},
		{"transfer.sender_fund_basis_points", p.Transfer.SenderFundBasisPoints},
		{"transfer.receiver_burn_basis_points", p.Transfer.ReceiverBurnBasisPoints},
		{"transfer.receiver_fund_basis_points", p.Transfer.ReceiverFundBasisPoints},
		{"floor.refund_basis_points", p.Floor.RefundBasisPoints},
		{"vault.burn_share_basis_points", p.Vault.BurnShareBasisPoints},
	} {
		if bp.v > 10000 {
			return fmt.Errorf("%s %d above 10000", bp.name, bp.v)
		}
	}
	for _, s := range []struct{ name, v string }{
		{"transfer.max_transfer_amount", p.Transfer.MaxTransferAmount},
		{"transfer.min_holding", p.Transfer.MinHolding},
		{"floor.reserve", p.Floor.Reserve},
		{"distributor.funds", p.Distributor.Funds},
	} {
		if s.v == "" {
			continue
		}
		if _, err := p.Amount(s.v); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	for i, s := range p.Distributor.Streams {
		if s.Beneficiary == "" {
			return fmt.Errorf("distributor.streams[%d] missing beneficiary", i)
		}
		if _, err := p.Amount(s.Rate); err != nil {
			return fmt.Errorf("distributor.streams[%d].rate: %w", i, err)
		}
	}
	for i, c := range p.NonCirculating {
		if c.Name == "" {
			return fmt.Errorf("non_circulating[%d] missing name", i)
		}
	}
	return nil
}

// Amount converts a human amount to base units at the token's decimals. An
// empty string is a nil amount.
func (p *Policy) Amount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return units.Parse(s, p.Token.Decimals)
}

// Integer parses a raw base-10 integer such as a divisor.
func Integer(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("%q is not a positive integer", s)
	}
	return v, nil
}
