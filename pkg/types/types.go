package types

import "time"

// ProtocolSnapshot is an atomic snapshot of the protocol at one rebase epoch.
// All amounts are base units as strings to avoid float rounding; Display
// carries the same figures at the token's decimals for humans.
type ProtocolSnapshot struct {
	Symbol    string    `json:"symbol"`
	Decimals  int32     `json:"decimals"`
	Epoch     uint64    `json:"epoch"`
	UpdatedAt time.Time `json:"updated_at"`
	ETag      string    `json:"etag"`

	Total          string           `json:"total"`
	Circulating    string           `json:"circulating"`
	Max            *string          `json:"max"`
	NonCirculating NonCircBreakdown `json:"non_circulating"`

	Rebase      RebaseState      `json:"rebase"`
	Vault       VaultState       `json:"vault"`
	Floor       FloorState       `json:"floor"`
	Distributor DistributorState `json:"distributor"`

	Display Display `json:"display"`
}

type NonCircBreakdown struct {
	Sum     string        `json:"sum"`
	Cohorts []CohortEntry `json:"cohorts"`
}

// AccountItem is one account's contribution to a cohort.
type AccountItem struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type CohortEntry struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	// Account is used for single-account cohorts (e.g., the fund).
	Account string `json:"account,omitempty"`
	// Items lists per-account details for multi-account cohorts.
	Items []AccountItem `json:"items,omitempty"`
	// Amount is the total amount for the cohort (sum of items when present).
	Amount string `json:"amount"`
}

type RebaseState struct {
	NormalDivisor string    `json:"normal_divisor"`
	SafeDivisor   string    `json:"safe_divisor"`
	Interval      string    `json:"interval"`
	BasisPoints   uint64    `json:"basis_points"`
	LastRebase    time.Time `json:"last_rebase"`
	NextRebase    time.Time `json:"next_rebase"`
}

type VaultState struct {
	Account          string `json:"account"`
	Divisor          string `json:"divisor"`
	Held             string `json:"held"`
	TotalShareSupply string `json:"total_share_supply"`
	PendingBurn      string `json:"pending_burn"`
	RefundValue      string `json:"refund_value"`
	Depositors       int    `json:"depositors"`
	TotalDeposited   string `json:"total_deposited"`
	TotalWithdrawn   string `json:"total_withdrawn"`
	TotalRefunded    string `json:"total_refunded"`
}

type FloorState struct {
	Account           string `json:"account"`
	Reserve           string `json:"reserve"`
	RefundBasisPoints uint64 `json:"refund_basis_points"`
	// UnitRefund is what burning one whole token would pay now.
	UnitRefund string `json:"unit_refund"`
}

type StreamState struct {
	Beneficiary string `json:"beneficiary"`
	Rate        string `json:"rate"`
	Pending     string `json:"pending"`
	Paid        string `json:"paid"`
}

type DistributorState struct {
	Account string        `json:"account"`
	Funds   string        `json:"funds"`
	Streams []StreamState `json:"streams"`
}

// Display repeats headline figures as decimal strings.
type Display struct {
	Total       string `json:"total"`
	Circulating string `json:"circulating"`
	Reserve     string `json:"reserve"`
	PendingBurn string `json:"pending_burn"`
}
