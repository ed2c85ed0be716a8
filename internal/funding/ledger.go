package funding

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Ledger tracks the stake each airline has deposited. An airline becomes
// funded once its cumulative stake reaches the threshold and never becomes
// unfunded again.
type Ledger struct {
	threshold decimal.Amount
	accounts  map[models.Address]*Account
	entries   []Entry
	funded    int
	total     decimal.Amount
}

// Account represents an airline's stake account
type Account struct {
	Airline   models.Address `json:"airline"`
	Balance   decimal.Amount `json:"balance"`
	Funded    bool           `json:"funded"`
	FundedAt  *time.Time     `json:"funded_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int            `json:"version"`
}

// Entry represents a single deposit
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Airline   models.Address `json:"airline"`
	Amount    decimal.Amount `json:"amount"`
	Balance   decimal.Amount `json:"balance"`
	CreatedAt time.Time      `json:"created_at"`
}

// Receipt is the result of a deposit
type Receipt struct {
	Entry         Entry
	BecameFunded  bool
	AlreadyFunded bool
}

// NewLedger creates a funding ledger with the given minimum stake
func NewLedger(threshold decimal.Amount) *Ledger {
	return &Ledger{
		threshold: threshold,
		accounts:  make(map[models.Address]*Account),
		total:     decimal.Zero,
	}
}

// Threshold returns the minimum stake for funded status
func (l *Ledger) Threshold() decimal.Amount {
	return l.threshold
}

// Fund credits the airline's stake. id names the deposit entry and at
// stamps it; both come from the caller so a replayed deposit is identical.
func (l *Ledger) Fund(id uuid.UUID, airline models.Address, amount decimal.Amount, at time.Time) (*Receipt, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("fund %s with %s: %w", airline, amount, models.ErrInvalidAmount)
	}

	now := at.UTC()
	account, ok := l.accounts[airline]
	if !ok {
		account = &Account{Airline: airline, Balance: decimal.Zero}
		l.accounts[airline] = account
	}

	wasFunded := account.Funded
	account.Balance = account.Balance.Add(amount)
	account.UpdatedAt = now
	account.Version++

	receipt := &Receipt{AlreadyFunded: wasFunded}
	if !wasFunded && account.Balance.Cmp(l.threshold) >= 0 {
		account.Funded = true
		account.FundedAt = &now
		l.funded++
		receipt.BecameFunded = true
	}

	entry := Entry{
		ID:        id,
		Airline:   airline,
		Amount:    amount,
		Balance:   account.Balance,
		CreatedAt: now,
	}
	l.entries = append(l.entries, entry)
	l.total = l.total.Add(amount)
	receipt.Entry = entry

	return receipt, nil
}

// IsFunded reports whether airline has reached the threshold
func (l *Ledger) IsFunded(airline models.Address) bool {
	account, ok := l.accounts[airline]
	return ok && account.Funded
}

// BalanceOf returns the airline's deposited stake
func (l *Ledger) BalanceOf(airline models.Address) decimal.Amount {
	if account, ok := l.accounts[airline]; ok {
		return account.Balance
	}
	return decimal.Zero
}

// Account returns a copy of the airline's account
func (l *Ledger) Account(airline models.Address) (Account, bool) {
	account, ok := l.accounts[airline]
	if !ok {
		return Account{}, false
	}
	return *account, true
}

// Entries returns deposits for an airline, oldest first
func (l *Ledger) Entries(airline models.Address) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Airline == airline {
			out = append(out, e)
		}
	}
	return out
}

// FundedCount returns the number of funded airlines
func (l *Ledger) FundedCount() int {
	return l.funded
}

// TotalStake returns the sum of all deposits
func (l *Ledger) TotalStake() decimal.Amount {
	return l.total
}

// Clone returns a deep copy used to roll back a failed call
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		threshold: l.threshold,
		accounts:  make(map[models.Address]*Account, len(l.accounts)),
		entries:   append([]Entry(nil), l.entries...),
		funded:    l.funded,
		total:     l.total,
	}
	for k, v := range l.accounts {
		account := *v
		c.accounts[k] = &account
	}
	return c
}
