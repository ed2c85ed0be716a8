package surety

import (
	"encoding/json"
	"fmt"

	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/internal/journal"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
	"github.com/terminal-bench/flightsurety/shared/events"
)

// ExecuteResult reports an admission attempt
type ExecuteResult struct {
	Airline    models.Address `json:"airline"`
	RegIndex   uint64         `json:"reg_index"`
	Votes      int            `json:"votes"`
	Required   int            `json:"required"`
	Bootstrap  bool           `json:"bootstrap"`
	Registered bool           `json:"registered"`
}

// FundingResult reports a deposit
type FundingResult struct {
	Airline      models.Address `json:"airline"`
	Amount       decimal.Amount `json:"amount"`
	Balance      decimal.Amount `json:"balance"`
	Funded       bool           `json:"funded"`
	BecameFunded bool           `json:"became_funded"`
}

// PolicyResult reports a purchase
type PolicyResult struct {
	FlightKey flights.Key    `json:"flight_key"`
	Passenger models.Address `json:"passenger"`
	Amount    decimal.Amount `json:"amount"`
	Stake     decimal.Amount `json:"stake"`
}

// RequestResult reports a status request
type RequestResult struct {
	FlightKey flights.Key `json:"flight_key"`
	Nonce     uint64      `json:"nonce"`
	Assigned  []uint64    `json:"assigned"`
	Opened    bool        `json:"opened"`
}

// OracleResult reports an oracle registration
type OracleResult struct {
	Oracle models.Address `json:"oracle"`
	Index  uint64         `json:"index"`
	Fee    decimal.Amount `json:"fee"`
}

// ResponseResult reports an accepted oracle response
type ResponseResult struct {
	FlightKey   flights.Key         `json:"flight_key"`
	OracleIndex uint64              `json:"oracle_index"`
	Status      models.FlightStatus `json:"status"`
	Count       int                 `json:"count"`
	Ignored     bool                `json:"ignored"`
	Finalized   bool                `json:"finalized"`
	Payouts     int                 `json:"payouts"`
}

// apply dispatches one command against the open transaction. It is the
// only place state changes, for live calls and replay alike.
func (a *App) apply(tx *Tx, cmd journal.Command) (interface{}, error) {
	switch cmd.Op {
	case OpSetOperatingStatus:
		var args operationalArgs
		if err := decodeArgs(cmd, &args); err != nil {
			return nil, err
		}
		if err := requireNoValue(cmd); err != nil {
			return nil, err
		}
		return nil, tx.Guard.SetOperatingStatus(args.Enabled, cmd.Caller)

	case OpAuthorizeCaller, OpDeauthorizeCaller:
		var args callerArgs
		if err := decodeArgs(cmd, &args); err != nil {
			return nil, err
		}
		if err := requireNoValue(cmd); err != nil {
			return nil, err
		}
		return nil, tx.SetAuthorized(args.Contract, cmd.Op == OpAuthorizeCaller)
	}

	if err := tx.Guard.Check(); err != nil {
		return nil, err
	}

	switch cmd.Op {
	case OpSubmitRegistration:
		return a.submitRegistration(tx, cmd)
	case OpVoteRegistration:
		return a.voteRegistration(tx, cmd)
	case OpExecuteRegistration:
		return a.executeRegistration(tx, cmd)
	case OpPayAirline:
		return a.payAirline(tx, cmd)
	case OpRegisterFlight:
		return a.registerFlight(tx, cmd)
	case OpPurchaseInsurance:
		return a.purchaseInsurance(tx, cmd)
	case OpFetchFlightStatus:
		return a.fetchFlightStatus(tx, cmd)
	case OpWithdraw:
		return a.withdraw(tx, cmd)
	case OpRegisterOracle:
		return a.registerOracle(tx, cmd)
	case OpSubmitOracleResponse:
		return a.submitOracleResponse(tx, cmd)
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", models.ErrInvalidArgument, cmd.Op)
	}
}

func (a *App) submitRegistration(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args registrationArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if err := a.checkVoter(tx, cmd); err != nil {
		return nil, err
	}

	airline, err := tx.Airlines.Submit(args.Airline, cmd.Caller, cmd.At)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.AirlineSubmitted, airline.Address.String(), events.AirlineData{
		Airline:  airline.Address.String(),
		RegIndex: airline.RegIndex,
		By:       cmd.Caller.String(),
	})
	return airline.RegIndex, nil
}

func (a *App) voteRegistration(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args registrationArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if err := a.checkVoter(tx, cmd); err != nil {
		return nil, err
	}

	airline, err := tx.Airlines.Vote(args.Index, cmd.Caller)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.AirlineVoted, airline.Address.String(), events.AirlineData{
		Airline:  airline.Address.String(),
		RegIndex: airline.RegIndex,
		By:       cmd.Caller.String(),
		Votes:    airline.Votes(),
	})
	return airline.Votes(), nil
}

func (a *App) executeRegistration(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args registrationArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if err := a.checkVoter(tx, cmd); err != nil {
		return nil, err
	}

	outcome, err := tx.Airlines.Execute(args.Index, cmd.Caller, cmd.At)
	if outcome == nil {
		return nil, err
	}
	result := &ExecuteResult{
		Airline:    outcome.Airline,
		RegIndex:   outcome.RegIndex,
		Votes:      outcome.Votes,
		Required:   outcome.Required,
		Bootstrap:  outcome.Bootstrap,
		Registered: err == nil,
	}
	if err != nil {
		return result, err
	}

	tx.Emit(events.AirlineRegistered, outcome.Airline.String(), events.AirlineData{
		Airline:   outcome.Airline.String(),
		RegIndex:  outcome.RegIndex,
		By:        cmd.Caller.String(),
		Votes:     outcome.Votes,
		Bootstrap: outcome.Bootstrap,
	})
	return result, nil
}

func (a *App) payAirline(tx *Tx, cmd journal.Command) (interface{}, error) {
	if !tx.Airlines.IsKnown(cmd.Caller) {
		return nil, fmt.Errorf("fund by %s: not a submitted airline: %w", cmd.Caller, models.ErrUnauthorized)
	}

	receipt, err := tx.Funding.Fund(events.DeriveEntryID(cmd.Seq), cmd.Caller, cmd.Value, cmd.At)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.AirlineDeposit, cmd.Caller.String(), events.AirlineData{
		Airline: cmd.Caller.String(),
		Amount:  cmd.Value.String(),
		Balance: receipt.Entry.Balance.String(),
	})
	if receipt.BecameFunded {
		tx.Emit(events.AirlineFunded, cmd.Caller.String(), events.AirlineData{
			Airline: cmd.Caller.String(),
			Balance: receipt.Entry.Balance.String(),
		})
	}

	return &FundingResult{
		Airline:      cmd.Caller,
		Amount:       cmd.Value,
		Balance:      receipt.Entry.Balance,
		Funded:       receipt.BecameFunded || receipt.AlreadyFunded,
		BecameFunded: receipt.BecameFunded,
	}, nil
}

func (a *App) registerFlight(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args flightArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if err := requireNoValue(cmd); err != nil {
		return nil, err
	}
	if !tx.Airlines.IsRegistered(cmd.Caller) {
		return nil, fmt.Errorf("register flight by %s: airline not registered: %w", cmd.Caller, models.ErrUnauthorized)
	}
	if a.policy.RequireFundedFlights && !tx.Funding.IsFunded(cmd.Caller) {
		return nil, fmt.Errorf("register flight by %s: airline not funded: %w", cmd.Caller, models.ErrUnauthorized)
	}

	flight, err := tx.Flights.Register(args.Name, args.Timestamp, cmd.Caller, cmd.At)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.FlightRegistered, string(flight.Key), events.FlightData{
		FlightKey: string(flight.Key),
		Name:      flight.Name,
		Timestamp: flight.Timestamp,
		Airline:   flight.Airline.String(),
		Status:    uint8(flight.Status),
	})
	return flight.Key, nil
}

func (a *App) purchaseInsurance(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args flightKeyArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if _, err := tx.Flights.Flight(args.FlightKey); err != nil {
		return nil, err
	}

	policy, err := tx.Pool.Purchase(args.FlightKey, cmd.Value, cmd.Caller, cmd.At)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.InsurancePurchased, string(args.FlightKey), events.InsuranceData{
		FlightKey: string(args.FlightKey),
		Passenger: cmd.Caller.String(),
		Amount:    cmd.Value.String(),
		Stake:     policy.Stake.String(),
	})
	return &PolicyResult{
		FlightKey: args.FlightKey,
		Passenger: cmd.Caller,
		Amount:    cmd.Value,
		Stake:     policy.Stake,
	}, nil
}

func (a *App) fetchFlightStatus(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args flightKeyArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if err := requireNoValue(cmd); err != nil {
		return nil, err
	}
	flight, err := tx.Flights.Flight(args.FlightKey)
	if err != nil {
		return nil, err
	}

	req, opened, err := tx.Oracles.Request(args.FlightKey, cmd.Seq, cmd.At)
	if err != nil {
		return nil, err
	}

	if opened {
		tx.Emit(events.StatusRequested, string(flight.Key), events.FlightData{
			FlightKey: string(flight.Key),
			Name:      flight.Name,
			Timestamp: flight.Timestamp,
			Airline:   flight.Airline.String(),
			Status:    uint8(flight.Status),
			Oracles:   req.Assigned,
		})
	}
	return &RequestResult{
		FlightKey: req.FlightKey,
		Nonce:     req.Nonce,
		Assigned:  req.Assigned,
		Opened:    opened,
	}, nil
}

func (a *App) withdraw(tx *Tx, cmd journal.Command) (interface{}, error) {
	if err := requireNoValue(cmd); err != nil {
		return nil, err
	}
	amount, err := tx.Pool.Withdraw(cmd.Caller)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.FundsWithdrawn, cmd.Caller.String(), events.InsuranceData{
		Passenger: cmd.Caller.String(),
		Amount:    amount.String(),
	})
	return amount, nil
}

func (a *App) registerOracle(tx *Tx, cmd journal.Command) (interface{}, error) {
	oracle, err := tx.Oracles.Register(cmd.Caller, cmd.Value, cmd.At)
	if err != nil {
		return nil, err
	}

	tx.Emit(events.OracleRegistered, cmd.Caller.String(), events.OracleData{
		Oracle: oracle.Address.String(),
		Index:  oracle.Index,
		Fee:    oracle.Fee.String(),
	})
	return &OracleResult{Oracle: oracle.Address, Index: oracle.Index, Fee: oracle.Fee}, nil
}

// submitOracleResponse records a report and, on consensus, resolves the
// flight and settles its policies in the same call.
func (a *App) submitOracleResponse(tx *Tx, cmd journal.Command) (interface{}, error) {
	var args oracleResponseArgs
	if err := decodeArgs(cmd, &args); err != nil {
		return nil, err
	}
	if err := requireNoValue(cmd); err != nil {
		return nil, err
	}

	report, err := tx.Oracles.Submit(args.FlightKey, args.OracleIndex, args.Status, cmd.Caller, cmd.At)
	if err != nil {
		return nil, err
	}
	result := &ResponseResult{
		FlightKey:   report.FlightKey,
		OracleIndex: report.OracleIndex,
		Status:      report.Status,
		Count:       report.Count,
		Ignored:     report.Ignored,
		Finalized:   report.Finalized,
	}
	if report.Ignored {
		return result, nil
	}

	tx.Emit(events.StatusReported, string(args.FlightKey), events.FlightData{
		FlightKey:   string(args.FlightKey),
		Status:      uint8(report.Status),
		OracleIndex: report.OracleIndex,
	})
	if !report.Finalized {
		return result, nil
	}

	if err := tx.Flights.SetStatus(args.FlightKey, report.Status, cmd.At); err != nil {
		return nil, err
	}
	payouts, err := tx.Pool.Settle(args.FlightKey, report.Status, cmd.At)
	if err != nil {
		return nil, err
	}

	flight, err := tx.Flights.Flight(args.FlightKey)
	if err != nil {
		return nil, err
	}
	tx.Emit(events.StatusResolved, string(flight.Key), events.FlightData{
		FlightKey: string(flight.Key),
		Name:      flight.Name,
		Timestamp: flight.Timestamp,
		Airline:   flight.Airline.String(),
		Status:    uint8(flight.Status),
	})
	for _, p := range payouts {
		if !p.Amount.IsPositive() {
			continue
		}
		tx.Emit(events.PayoutCredited, p.Passenger.String(), events.InsuranceData{
			FlightKey: string(p.FlightKey),
			Passenger: p.Passenger.String(),
			Amount:    p.Amount.String(),
			Stake:     p.Stake.String(),
		})
		result.Payouts++
	}
	return result, nil
}

// checkVoter applies the funded-participant rule to admission calls
func (a *App) checkVoter(tx *Tx, cmd journal.Command) error {
	if err := requireNoValue(cmd); err != nil {
		return err
	}
	if a.policy.RequireFundedVoter && tx.Airlines.IsRegistered(cmd.Caller) && !tx.Funding.IsFunded(cmd.Caller) {
		return fmt.Errorf("%s by %s: airline not funded: %w", cmd.Op, cmd.Caller, models.ErrUnauthorized)
	}
	return nil
}

func decodeArgs(cmd journal.Command, v interface{}) error {
	if len(cmd.Args) == 0 {
		return fmt.Errorf("%s: %w: missing arguments", cmd.Op, models.ErrInvalidArgument)
	}
	if err := json.Unmarshal(cmd.Args, v); err != nil {
		return fmt.Errorf("%s: %w: %v", cmd.Op, models.ErrInvalidArgument, err)
	}
	return nil
}

// requireNoValue rejects value attached to a call that does not take any
func requireNoValue(cmd journal.Command) error {
	if cmd.Value.IsZero() {
		return nil
	}
	return fmt.Errorf("%s: %w: call does not accept value", cmd.Op, models.ErrInvalidAmount)
}
