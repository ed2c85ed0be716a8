package surety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/flightsurety/internal/flights"
	"github.com/terminal-bench/flightsurety/internal/journal"
	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Journaled operations
const (
	OpSetOperatingStatus   = "set_operating_status"
	OpAuthorizeCaller      = "authorize_caller"
	OpDeauthorizeCaller    = "deauthorize_caller"
	OpSubmitRegistration   = "submit_registration"
	OpVoteRegistration     = "vote_registration"
	OpExecuteRegistration  = "execute_registration"
	OpPayAirline           = "pay_airline"
	OpRegisterFlight       = "register_flight"
	OpPurchaseInsurance    = "purchase_insurance"
	OpFetchFlightStatus    = "fetch_flight_status"
	OpWithdraw             = "withdraw"
	OpRegisterOracle       = "register_oracle"
	OpSubmitOracleResponse = "submit_oracle_response"
)

// ErrJournal wraps a failed journal write; the call it belonged to was
// rolled back.
var ErrJournal = errors.New("journal write failed")

// Policy holds the caller-eligibility switches
type Policy struct {
	// RequireFundedVoter makes submit, vote and execute require a funded
	// caller.
	RequireFundedVoter bool
	// RequireFundedFlights makes flight registration require a funded
	// airline.
	RequireFundedFlights bool
}

// App is the operation surface. Mutating calls are serialized, applied
// atomically through Data and journaled; reads go straight to Data.
type App struct {
	mu       sync.Mutex
	identity models.Address
	data     *Data
	store    journal.Store
	policy   Policy
	logger   zerolog.Logger
	now      func() time.Time
	head     uint64
}

// AppConfig configures an App
type AppConfig struct {
	// Identity is the contract address the App presents to Data.
	Identity models.Address
	Data     *Data
	Store    journal.Store
	Policy   Policy
	Logger   zerolog.Logger
	Clock    func() time.Time
}

// NewApp creates the operation surface over cfg.Data. A nil Store keeps no
// journal.
func NewApp(cfg AppConfig) *App {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &App{
		identity: cfg.Identity,
		data:     cfg.Data,
		store:    cfg.Store,
		policy:   cfg.Policy,
		logger:   cfg.Logger.With().Str("component", "app").Logger(),
		now:      clock,
	}
}

// Identity returns the contract address the App writes as
func (a *App) Identity() models.Address {
	return a.identity
}

// Data returns the underlying ledger
func (a *App) Data() *Data {
	return a.data
}

// Head returns the seq of the last applied command
func (a *App) Head() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.head
}

type registrationArgs struct {
	Airline models.Address `json:"airline,omitempty"`
	Index   uint64         `json:"index,omitempty"`
}

type operationalArgs struct {
	Enabled bool `json:"enabled"`
}

type callerArgs struct {
	Contract models.Address `json:"contract"`
}

type flightArgs struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

type flightKeyArgs struct {
	FlightKey flights.Key `json:"flight_key"`
}

type oracleResponseArgs struct {
	FlightKey   flights.Key         `json:"flight_key"`
	OracleIndex uint64              `json:"oracle_index"`
	Status      models.FlightStatus `json:"status"`
}

// Call carries the per-request context of a mutating operation
type Call struct {
	Caller        models.Address
	Value         decimal.Amount
	CorrelationID string
}

// SetOperatingStatus pauses or resumes the ledger; owner only
func (a *App) SetOperatingStatus(ctx context.Context, call Call, enabled bool) error {
	_, err := a.submit(ctx, call, OpSetOperatingStatus, operationalArgs{Enabled: enabled})
	return err
}

// AuthorizeCaller grants contract write access to Data; owner only
func (a *App) AuthorizeCaller(ctx context.Context, call Call, contract models.Address) error {
	_, err := a.submit(ctx, call, OpAuthorizeCaller, callerArgs{Contract: contract})
	return err
}

// DeauthorizeCaller revokes write access; owner only
func (a *App) DeauthorizeCaller(ctx context.Context, call Call, contract models.Address) error {
	_, err := a.submit(ctx, call, OpDeauthorizeCaller, callerArgs{Contract: contract})
	return err
}

// SubmitRegistration proposes airline and returns its registration index
func (a *App) SubmitRegistration(ctx context.Context, call Call, airline models.Address) (uint64, error) {
	res, err := a.submit(ctx, call, OpSubmitRegistration, registrationArgs{Airline: airline})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

// VoteRegistration approves the submission at index and returns its tally
func (a *App) VoteRegistration(ctx context.Context, call Call, index uint64) (int, error) {
	res, err := a.submit(ctx, call, OpVoteRegistration, registrationArgs{Index: index})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// ExecuteRegistration tries to admit the submission at index. The outcome
// is returned together with ErrQuorumNotReached when votes are short.
func (a *App) ExecuteRegistration(ctx context.Context, call Call, index uint64) (*ExecuteResult, error) {
	res, err := a.submit(ctx, call, OpExecuteRegistration, registrationArgs{Index: index})
	out, _ := res.(*ExecuteResult)
	return out, err
}

// PayAirline credits the attached value to the caller's stake
func (a *App) PayAirline(ctx context.Context, call Call) (*FundingResult, error) {
	res, err := a.submit(ctx, call, OpPayAirline, nil)
	if err != nil {
		return nil, err
	}
	return res.(*FundingResult), nil
}

// RegisterFlight adds a flight for the calling airline
func (a *App) RegisterFlight(ctx context.Context, call Call, name string, timestamp int64) (flights.Key, error) {
	res, err := a.submit(ctx, call, OpRegisterFlight, flightArgs{Name: name, Timestamp: timestamp})
	if err != nil {
		return "", err
	}
	return res.(flights.Key), nil
}

// PurchaseInsurance escrows the attached value as the caller's stake on key
func (a *App) PurchaseInsurance(ctx context.Context, call Call, key flights.Key) (*PolicyResult, error) {
	res, err := a.submit(ctx, call, OpPurchaseInsurance, flightKeyArgs{FlightKey: key})
	if err != nil {
		return nil, err
	}
	return res.(*PolicyResult), nil
}

// FetchFlightStatus opens an oracle request for key, or returns the one
// already open.
func (a *App) FetchFlightStatus(ctx context.Context, call Call, key flights.Key) (*RequestResult, error) {
	res, err := a.submit(ctx, call, OpFetchFlightStatus, flightKeyArgs{FlightKey: key})
	if err != nil {
		return nil, err
	}
	return res.(*RequestResult), nil
}

// Withdraw pays out the caller's whole credit
func (a *App) Withdraw(ctx context.Context, call Call) (decimal.Amount, error) {
	res, err := a.submit(ctx, call, OpWithdraw, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return res.(decimal.Amount), nil
}

// RegisterOracle enrols the caller as an oracle for the attached fee
func (a *App) RegisterOracle(ctx context.Context, call Call) (*OracleResult, error) {
	res, err := a.submit(ctx, call, OpRegisterOracle, nil)
	if err != nil {
		return nil, err
	}
	return res.(*OracleResult), nil
}

// SubmitOracleResponse records the caller's report for key. Reports that
// arrive after resolution fail with ErrRequestClosed, which callers may
// treat as ignored.
func (a *App) SubmitOracleResponse(ctx context.Context, call Call, key flights.Key, oracleIndex uint64, status models.FlightStatus) (*ResponseResult, error) {
	res, err := a.submit(ctx, call, OpSubmitOracleResponse, oracleResponseArgs{
		FlightKey:   key,
		OracleIndex: oracleIndex,
		Status:      status,
	})
	if err != nil {
		return nil, err
	}
	return res.(*ResponseResult), nil
}

// submit builds the command for a live call and runs it
func (a *App) submit(ctx context.Context, call Call, op string, args interface{}) (interface{}, error) {
	cmd := journal.Command{
		Op:     op,
		Caller: call.Caller,
		Value:  call.Value,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", op, err)
		}
		cmd.Args = raw
	}
	if call.CorrelationID == "" {
		call.CorrelationID = uuid.New().String()
	}

	start := time.Now()
	res, err := a.run(ctx, cmd, call.CorrelationID, true)
	a.record(op, err, time.Since(start), call)
	return res, err
}

// run applies cmd as one atomic call. Live calls get the next seq and are
// journaled before the call commits; replayed calls keep their seq.
func (a *App) run(ctx context.Context, cmd journal.Command, correlationID string, live bool) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if live {
		cmd.Seq = a.head + 1
		cmd.At = a.now().Truncate(time.Microsecond)
	} else if cmd.Seq != a.head+1 {
		return nil, fmt.Errorf("replay %d after %d: %w", cmd.Seq, a.head, journal.ErrSequence)
	}

	meta := Meta{
		Seq:           cmd.Seq,
		At:            cmd.At,
		Caller:        cmd.Caller,
		CorrelationID: correlationID,
	}

	var result interface{}
	fn := func(tx *Tx) error {
		res, err := a.apply(tx, cmd)
		result = res
		if err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}
		if live && a.store != nil {
			if err := a.store.Append(ctx, cmd); err != nil {
				return fmt.Errorf("%w: command %d: %v", ErrJournal, cmd.Seq, err)
			}
		}
		return nil
	}

	var err error
	switch cmd.Op {
	case OpSetOperatingStatus, OpAuthorizeCaller, OpDeauthorizeCaller:
		err = a.data.Admin(meta, fn)
	default:
		err = a.data.Update(a.identity, meta, fn)
	}
	if err != nil {
		return result, err
	}

	a.head = cmd.Seq
	observability.SetJournalHead(a.head)
	return result, nil
}

// Replay re-applies journaled commands after the current head. It is used
// on startup and by a standby that has just been elected.
func (a *App) Replay(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, nil
	}
	cmds, err := a.store.Load(ctx, a.Head())
	if err != nil {
		return 0, fmt.Errorf("failed to load journal: %w", err)
	}

	for i, cmd := range cmds {
		if _, err := a.run(ctx, cmd, "", false); err != nil {
			return i, fmt.Errorf("replay command %d (%s): %w", cmd.Seq, cmd.Op, err)
		}
	}
	if len(cmds) > 0 {
		a.logger.Info().Int("commands", len(cmds)).Uint64("head", a.Head()).Msg("journal replayed")
	}
	return len(cmds), nil
}

func (a *App) record(op string, err error, d time.Duration, call Call) {
	outcome := "ok"
	event := a.logger.Debug()
	switch {
	case err == nil:
	case models.IsBenign(err):
		outcome = "benign"
	default:
		outcome = "error"
		event = a.logger.Warn().Err(err)
		if errors.Is(err, ErrJournal) {
			event = a.logger.Error().Err(err)
		}
	}
	observability.RecordOperation(op, outcome, d)

	event.
		Str("op", op).
		Str("caller", call.Caller.String()).
		Str("correlation_id", call.CorrelationID).
		Str("outcome", outcome).
		Dur("duration", d).
		Msg("operation")
}
