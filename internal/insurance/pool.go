package insurance

import (
	"fmt"
	"sort"
	"time"

	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Policy is a passenger's stake on one flight
type Policy struct {
	FlightKey   flights.Key    `json:"flight_key"`
	Passenger   models.Address `json:"passenger"`
	Stake       decimal.Amount `json:"stake"`
	Payout      decimal.Amount `json:"payout"`
	Claimed     bool           `json:"claimed"`
	PurchasedAt time.Time      `json:"purchased_at"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
}

// Payout is one credit produced by Settle
type Payout struct {
	FlightKey flights.Key
	Passenger models.Address
	Stake     decimal.Amount
	Amount    decimal.Amount
}

// Config holds pool parameters
type Config struct {
	Cap        decimal.Amount
	Multiplier decimal.Ratio
}

// Pool issues capped policies and settles them into withdrawable credit.
// It never sends value on its own; Withdraw is the only outflow. It holds
// no lock; callers serialize access.
type Pool struct {
	cap        decimal.Amount
	multiplier decimal.Ratio

	policies map[flights.Key]map[models.Address]*Policy
	settled  map[flights.Key]models.FlightStatus
	credits  map[models.Address]decimal.Amount
	escrow   decimal.Amount
	paidOut  decimal.Amount
}

// NewPool creates an insurance pool
func NewPool(cfg Config) *Pool {
	return &Pool{
		cap:        cfg.Cap,
		multiplier: cfg.Multiplier,
		policies:   make(map[flights.Key]map[models.Address]*Policy),
		settled:    make(map[flights.Key]models.FlightStatus),
		credits:    make(map[models.Address]decimal.Amount),
		escrow:     decimal.Zero,
		paidOut:    decimal.Zero,
	}
}

// Cap returns the maximum stake per passenger per flight
func (p *Pool) Cap() decimal.Amount {
	return p.cap
}

// Multiplier returns the payout ratio for airline-caused delays
func (p *Pool) Multiplier() decimal.Ratio {
	return p.multiplier
}

// Purchase adds amount to passenger's policy on the flight. The flight's
// existence is checked against the registry by the caller.
func (p *Pool) Purchase(key flights.Key, amount decimal.Amount, passenger models.Address, at time.Time) (*Policy, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("purchase on %s: %w: %s", key, models.ErrInvalidAmount, amount)
	}
	if _, done := p.settled[key]; done {
		return nil, fmt.Errorf("purchase on %s: %w", key, models.ErrFlightResolved)
	}

	current := decimal.Zero
	policy := p.policies[key][passenger]
	if policy != nil {
		current = policy.Stake
	}
	if amount.GreaterThan(p.cap) || current.Add(amount).GreaterThan(p.cap) {
		return nil, fmt.Errorf("purchase %s on %s (held %s, cap %s): %w", amount, key, current, p.cap, models.ErrStakeCapExceeded)
	}

	if policy == nil {
		if p.policies[key] == nil {
			p.policies[key] = make(map[models.Address]*Policy)
		}
		policy = &Policy{
			FlightKey:   key,
			Passenger:   passenger,
			Stake:       decimal.Zero,
			Payout:      decimal.Zero,
			PurchasedAt: at.UTC(),
		}
		p.policies[key][passenger] = policy
	}
	policy.Stake = policy.Stake.Add(amount)
	p.escrow = p.escrow.Add(amount)

	cp := *policy
	return &cp, nil
}

// Settle claims every policy on the flight. Only LateAirline pays out
// (stake times multiplier); other statuses claim with zero payout and the
// stake is retained. A flight settles once; later calls return
// ErrFlightResolved.
func (p *Pool) Settle(key flights.Key, status models.FlightStatus, at time.Time) ([]Payout, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("settle %s: %w: %s", key, models.ErrInvalidArgument, status)
	}
	if _, done := p.settled[key]; done {
		return nil, fmt.Errorf("settle %s: %w", key, models.ErrFlightResolved)
	}
	p.settled[key] = status

	now := at.UTC()
	var payouts []Payout
	for _, policy := range p.sortedPolicies(key) {
		amount := decimal.Zero
		if status == models.StatusLateAirline {
			amount = policy.Stake.MulRatio(p.multiplier)
		}
		policy.Claimed = true
		policy.ClaimedAt = &now
		policy.Payout = amount
		p.escrow = p.escrow.Sub(policy.Stake)

		if amount.IsPositive() {
			p.credits[policy.Passenger] = p.Credit(policy.Passenger).Add(amount)
		}
		payouts = append(payouts, Payout{
			FlightKey: key,
			Passenger: policy.Passenger,
			Stake:     policy.Stake,
			Amount:    amount,
		})
	}
	return payouts, nil
}

// Withdraw zeroes and returns the passenger's credit
func (p *Pool) Withdraw(passenger models.Address) (decimal.Amount, error) {
	amount := p.Credit(passenger)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("withdraw for %s: %w", passenger, models.ErrNothingToWithdraw)
	}
	delete(p.credits, passenger)
	p.paidOut = p.paidOut.Add(amount)
	return amount, nil
}

// Credit returns the passenger's withdrawable balance
func (p *Pool) Credit(passenger models.Address) decimal.Amount {
	if c, ok := p.credits[passenger]; ok {
		return c
	}
	return decimal.Zero
}

// Policy returns a copy of the passenger's policy on the flight
func (p *Pool) Policy(key flights.Key, passenger models.Address) (*Policy, error) {
	policy := p.policies[key][passenger]
	if policy == nil {
		return nil, fmt.Errorf("policy on %s for %s: %w", key, passenger, models.ErrNotFound)
	}
	cp := *policy
	return &cp, nil
}

// Policies returns copies of all policies on the flight ordered by passenger
func (p *Pool) Policies(key flights.Key) []Policy {
	var out []Policy
	for _, policy := range p.sortedPolicies(key) {
		out = append(out, *policy)
	}
	return out
}

// Settled reports whether the flight has been settled
func (p *Pool) Settled(key flights.Key) bool {
	_, ok := p.settled[key]
	return ok
}

// Escrow returns stakes held on unsettled flights
func (p *Pool) Escrow() decimal.Amount {
	return p.escrow
}

// Outstanding returns credited but not yet withdrawn payouts
func (p *Pool) Outstanding() decimal.Amount {
	total := decimal.Zero
	for _, c := range p.credits {
		total = total.Add(c)
	}
	return total
}

// PaidOut returns the total withdrawn so far
func (p *Pool) PaidOut() decimal.Amount {
	return p.paidOut
}

// Clone returns a deep copy used to roll back a failed call
func (p *Pool) Clone() *Pool {
	c := &Pool{
		cap:        p.cap,
		multiplier: p.multiplier,
		policies:   make(map[flights.Key]map[models.Address]*Policy, len(p.policies)),
		settled:    make(map[flights.Key]models.FlightStatus, len(p.settled)),
		credits:    make(map[models.Address]decimal.Amount, len(p.credits)),
		escrow:     p.escrow,
		paidOut:    p.paidOut,
	}
	for key, byPassenger := range p.policies {
		m := make(map[models.Address]*Policy, len(byPassenger))
		for passenger, policy := range byPassenger {
			cp := *policy
			m[passenger] = &cp
		}
		c.policies[key] = m
	}
	for k, v := range p.settled {
		c.settled[k] = v
	}
	for k, v := range p.credits {
		c.credits[k] = v
	}
	return c
}

func (p *Pool) sortedPolicies(key flights.Key) []*Policy {
	byPassenger := p.policies[key]
	out := make([]*Policy, 0, len(byPassenger))
	for _, policy := range byPassenger {
		out = append(out, policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Passenger < out[j].Passenger })
	return out
}
