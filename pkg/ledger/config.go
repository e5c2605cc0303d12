package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

const (
	BasisPointsDivisor = 10000

	MinRebaseInterval    = 30 * time.Minute
	MaxRebaseInterval    = 7 * 24 * time.Hour
	MaxRebaseBasisPoints = 500

	MaxBurnBasisPoints = 500
	MaxFundBasisPoints = 20
)

// DefaultDivisor is the scale applied to balances at genesis and the fixed
// divisor of safe accounts.
var DefaultDivisor = big.NewInt(100_000_000)

// TransferConfig holds the fee and limit rules of an account. Sender fields
// apply when the account sends, receiver fields when it receives.
type TransferConfig struct {
	SenderBurnBasisPoints   uint64
	SenderFundBasisPoints   uint64
	ReceiverBurnBasisPoints uint64
	ReceiverFundBasisPoints uint64

	// MaxTransferAmount caps a single outgoing transfer; nil or zero is unlimited.
	MaxTransferAmount *big.Int
	// MinHolding is the smallest non-zero balance an account may keep after sending.
	MinHolding *big.Int
}

func (c TransferConfig) Validate() error {
	if c.SenderBurnBasisPoints > MaxBurnBasisPoints || c.ReceiverBurnBasisPoints > MaxBurnBasisPoints {
		return fmt.Errorf("burn basis points above %d: %w", MaxBurnBasisPoints, errs.ErrInvalidArgument)
	}
	if c.SenderFundBasisPoints > MaxFundBasisPoints || c.ReceiverFundBasisPoints > MaxFundBasisPoints {
		return fmt.Errorf("fund basis points above %d: %w", MaxFundBasisPoints, errs.ErrInvalidArgument)
	}
	if c.MaxTransferAmount != nil && c.MaxTransferAmount.Sign() < 0 {
		return fmt.Errorf("negative max transfer amount: %w", errs.ErrInvalidArgument)
	}
	if c.MinHolding != nil && c.MinHolding.Sign() < 0 {
		return fmt.Errorf("negative min holding: %w", errs.ErrInvalidArgument)
	}
	return nil
}

func (c TransferConfig) clone() TransferConfig {
	out := c
	if c.MaxTransferAmount != nil {
		out.MaxTransferAmount = new(big.Int).Set(c.MaxTransferAmount)
	}
	if c.MinHolding != nil {
		out.MinHolding = new(big.Int).Set(c.MinHolding)
	}
	return out
}

type Config struct {
	Gov  string
	Fund string

	InitialSupply *big.Int
	// MaxSupply bounds minting; nil is unbounded.
	MaxSupply *big.Int

	InitialDivisor *big.Int
	// MaxDivisor stops rebasing once reached; nil is unbounded.
	MaxDivisor *big.Int

	RebaseInterval    time.Duration
	RebaseBasisPoints uint64
	// MaxIntervalsPerRebase caps the intervals applied by one Rebase call; zero is uncapped.
	MaxIntervalsPerRebase uint64

	DefaultTransfer TransferConfig

	Clock  clock.Clock
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.InitialDivisor == nil || c.InitialDivisor.Sign() <= 0 {
		c.InitialDivisor = new(big.Int).Set(DefaultDivisor)
	}
	if c.RebaseInterval <= 0 {
		c.RebaseInterval = time.Hour
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) validate() error {
	if c.Gov == "" {
		return fmt.Errorf("ledger: empty governor: %w", errs.ErrInvalidArgument)
	}
	if c.RebaseInterval < MinRebaseInterval || c.RebaseInterval > MaxRebaseInterval {
		return fmt.Errorf("ledger: rebase interval %s outside [%s, %s]: %w",
			c.RebaseInterval, MinRebaseInterval, MaxRebaseInterval, errs.ErrInvalidArgument)
	}
	if c.RebaseBasisPoints > MaxRebaseBasisPoints {
		return fmt.Errorf("ledger: rebase basis points %d above %d: %w",
			c.RebaseBasisPoints, MaxRebaseBasisPoints, errs.ErrInvalidArgument)
	}
	if c.InitialSupply != nil && c.InitialSupply.Sign() < 0 {
		return fmt.Errorf("ledger: negative initial supply: %w", errs.ErrInvalidArgument)
	}
	if c.MaxSupply != nil && c.InitialSupply != nil && c.InitialSupply.Cmp(c.MaxSupply) > 0 {
		return fmt.Errorf("ledger: initial supply above max supply: %w", errs.ErrInvalidArgument)
	}
	if c.MaxDivisor != nil && c.MaxDivisor.Cmp(c.InitialDivisor) < 0 {
		return fmt.Errorf("ledger: max divisor below initial divisor: %w", errs.ErrInvalidArgument)
	}
	if err := c.DefaultTransfer.Validate(); err != nil {
		return fmt.Errorf("ledger: default transfer config: %w", err)
	}
	return nil
}
