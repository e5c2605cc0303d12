package ledger

import (
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/errs"
)

// SetGov hands governance to account in a single step.
func (l *Ledger) SetGov(caller, account string) error {
	if account == "" {
		return fmt.Errorf("ledger: set gov: empty account: %w", errs.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set gov", caller)
	}
	l.log.Info("governor changed", zap.String("from", l.gov), zap.String("to", account))
	l.gov = account
	return nil
}

func (l *Ledger) SetFund(caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set fund", caller)
	}
	l.fund = account
	return nil
}

func (l *Ledger) SetMinter(caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set minter", caller)
	}
	l.minter = account
	return nil
}

// SetFloor registers the only account allowed to burn. It can be set once.
func (l *Ledger) SetFloor(caller, account string) error {
	if account == "" {
		return fmt.Errorf("ledger: set floor: empty account: %w", errs.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set floor", caller)
	}
	if l.floor != "" {
		return fmt.Errorf("ledger: floor already set to %s: %w", l.floor, errs.ErrAlreadyInitialized)
	}
	l.floor = account
	return nil
}

func (l *Ledger) SetRebaseConfig(caller string, interval time.Duration, basisPoints uint64) error {
	if interval < MinRebaseInterval || interval > MaxRebaseInterval {
		return fmt.Errorf("ledger: rebase interval %s: %w", interval, errs.ErrInvalidArgument)
	}
	if basisPoints > MaxRebaseBasisPoints {
		return fmt.Errorf("ledger: rebase basis points %d: %w", basisPoints, errs.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set rebase config", caller)
	}
	l.interval = interval
	l.rebaseBps = basisPoints
	l.log.Info("rebase config", zap.Duration("interval", interval), zap.Uint64("basis_points", basisPoints))
	return nil
}

func (l *Ledger) SetDefaultTransferConfig(caller string, cfg TransferConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ledger: default transfer config: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set default transfer config", caller)
	}
	l.defaultTransfer = cfg.clone()
	return nil
}

// SetTransferConfig overrides the fee and limit rules of one account.
func (l *Ledger) SetTransferConfig(caller, account string, cfg TransferConfig) error {
	if account == "" {
		return fmt.Errorf("ledger: set transfer config: empty account: %w", errs.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ledger: transfer config for %s: %w", account, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("set transfer config", caller)
	}
	l.configs[account] = cfg.clone()
	return nil
}

func (l *Ledger) ClearTransferConfig(caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("clear transfer config", caller)
	}
	delete(l.configs, account)
	return nil
}

// CreateSafe exempts account from rebases and transfer fees. Its current
// balance is carried over at face value.
func (l *Ledger) CreateSafe(caller, account string) error {
	if account == "" {
		return fmt.Errorf("ledger: create safe: empty account: %w", errs.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.gov {
		return l.forbidden("create safe", caller)
	}
	if l.safes[account] {
		return fmt.Errorf("ledger: %s is already a safe: %w", account, errs.ErrAlreadyInitialized)
	}
	bal := l.balanceOf(account)
	l.debitAll(account)
	l.safes[account] = true
	if bal.Sign() > 0 {
		l.credit(account, bal)
	}
	l.log.Info("safe created", zap.String("account", account), zap.Stringer("balance", bal))
	return nil
}

// SupplyBreakdown splits the total supply into normal and safe holdings.
func (l *Ledger) SupplyBreakdown() (normal, safe *big.Int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Quo(l.normalGons, l.normalDivisor), new(big.Int).Quo(l.safeGons, l.safeDivisor)
}
