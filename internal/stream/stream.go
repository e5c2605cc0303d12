// Package stream computes linear payout streams. All amounts are integer
// base units; elapsed time is counted in whole seconds.
package stream

import (
	"math/big"
	"time"
)

// Accrued is rate * whole seconds elapsed between from and now; zero if now
// is not after from.
func Accrued(rate *big.Int, from, now time.Time) *big.Int {
	if rate == nil || rate.Sign() <= 0 || !now.After(from) {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(rate, big.NewInt(wholeSeconds(from, now)))
}

// Checkpoint is from advanced by the whole seconds Accrued pays up to now.
// Restarting a stream there carries the sub-second remainder into the next
// accrual.
func Checkpoint(from, now time.Time) time.Time {
	return from.Add(time.Duration(wholeSeconds(from, now)) * time.Second)
}

func wholeSeconds(from, now time.Time) int64 {
	if !now.After(from) {
		return 0
	}
	return int64(now.Sub(from) / time.Second)
}

// Capped returns min(owed, available), treating a negative available as zero.
func Capped(owed, available *big.Int) *big.Int {
	if available == nil || available.Sign() <= 0 || owed == nil || owed.Sign() <= 0 {
		return big.NewInt(0)
	}
	if owed.Cmp(available) > 0 {
		return new(big.Int).Set(available)
	}
	return new(big.Int).Set(owed)
}
