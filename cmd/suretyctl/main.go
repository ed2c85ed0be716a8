package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terminal-bench/flightsurety/internal/auth"
	"github.com/terminal-bench/flightsurety/internal/journal"
	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

const usage = `usage: suretyctl <command> [flags]

commands:
  token    issue a bearer token for an account
  journal  print the tail of the Postgres journal
`

func main() {
	observability.InitLogger("suretyctl", "info", "console")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "token":
		err = token(os.Args[2:])
	case "journal":
		err = tail(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	account := fs.String("account", "", "account address, 0x-prefixed hex")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := models.ParseAddress(*account)
	if err != nil {
		return err
	}
	tok, err := auth.NewService(*secret).Issue(addr, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func tail(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dsn := fs.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	n := fs.Uint64("n", 20, "number of commands to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		return fmt.Errorf("database-url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := journal.OpenPostgres(ctx, *dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	head, err := store.Head(ctx)
	if err != nil {
		return err
	}
	var after uint64
	if head > *n {
		after = head - *n
	}
	cmds, err := store.Load(ctx, after)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, cmd := range cmds {
		if err := enc.Encode(cmd); err != nil {
			return err
		}
	}
	log.Info().Uint64("head", head).Int("printed", len(cmds)).Msg("journal tail")
	return nil
}
