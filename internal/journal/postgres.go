package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS surety_commands (
	seq        BIGINT PRIMARY KEY,
	op         TEXT NOT NULL,
	caller     TEXT NOT NULL,
	value      NUMERIC NOT NULL DEFAULT 0,
	args       JSONB,
	created_at TIMESTAMPTZ NOT NULL
)`

// uniqueViolation is the Postgres error code for a duplicate primary key
const uniqueViolation = "23505"

// PostgresStore keeps the journal in a Postgres table
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and makes sure the table exists
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the journal table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, cmd Command) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var head uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM surety_commands`).Scan(&head); err != nil {
		return fmt.Errorf("failed to read journal head: %w", err)
	}
	if cmd.Seq != head+1 {
		return fmt.Errorf("append %d, want %d: %w", cmd.Seq, head+1, ErrSequence)
	}

	var args interface{}
	if len(cmd.Args) > 0 {
		args = string(cmd.Args)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO surety_commands (seq, op, caller, value, args, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		cmd.Seq, cmd.Op, cmd.Caller.String(), cmd.Value.String(), args, cmd.At,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("append %d: %w", cmd.Seq, ErrSequence)
		}
		return fmt.Errorf("failed to insert command: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, after uint64) ([]Command, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, caller, value, args, created_at
		 FROM surety_commands WHERE seq > $1 ORDER BY seq`,
		after,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		var (
			cmd    Command
			caller string
			value  string
			args   sql.NullString
		)
		if err := rows.Scan(&cmd.Seq, &cmd.Op, &caller, &value, &args, &cmd.At); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		cmd.Caller = models.Address(caller)
		if cmd.Value, err = decimal.NewAmount(value); err != nil {
			return nil, fmt.Errorf("command %d: %w", cmd.Seq, err)
		}
		if args.Valid {
			cmd.Args = []byte(args.String)
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commands: %w", err)
	}
	return commands, nil
}

func (s *PostgresStore) Head(ctx context.Context) (uint64, error) {
	var head uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM surety_commands`).Scan(&head); err != nil {
		return 0, fmt.Errorf("failed to read journal head: %w", err)
	}
	return head, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
