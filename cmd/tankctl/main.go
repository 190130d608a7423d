// Command tankctl inspects and repairs the persisted ledger from the shell.
//
// Usage:
//
//	tankctl [--dsn DSN] [--state-key KEY] <command> [flags] [args]
//
// Commands:
//
//	dump                       print the state document as indented JSON
//	show <user>                balance, expiries and queue position of a user (id or name)
//	credit <user> <amount>     add tokens to a wallet (--source, default "manual")
//	sweep                      purge expired tokens now
//	reset --yes                clear both queues and every wallet
//	seal-tokens [--dry-run]    encrypt plaintext OAuth tokens with ENCRYPTION_KEY
//	migrate [--down]           print the schema version, or roll back one migration
//
// DSN and state key default to DB_DSN and STATE_KEY.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/db"
	"github.com/onnwee/tank-queue/store"
)

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tankctl:", err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	db    *db.DB
	store *store.StateStore
	kv    *db.KV
	out   io.Writer
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"dump":        cmdDump,
	"show":        cmdShow,
	"credit":      cmdCredit,
	"sweep":       cmdSweep,
	"reset":       cmdReset,
	"seal-tokens": cmdSealTokens,
	"migrate":     cmdMigrate,
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs := pflag.NewFlagSet("tankctl", pflag.ContinueOnError)
	fs.SetOutput(out)
	dsn := fs.String("dsn", cfg.DBDsn, "database DSN (postgres URL or sqlite:<path>)")
	stateKey := fs.String("state-key", cfg.StateKey, "kv key of the state document")
	fs.SetInterspersed(false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	database, err := db.Connect(*dsn)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.RunMigrations(ctx, database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	kv := database.KV()
	return cmd(ctx, &env{db: database, kv: kv, store: store.New(kv, *stateKey), out: out}, rest[1:])
}
