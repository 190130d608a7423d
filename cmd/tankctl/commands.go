package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/crypto"
	"github.com/onnwee/tank-queue/db"
	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/store"
)

func (e *env) ledger(ctx context.Context) *ledger.Ledger {
	return &ledger.Ledger{TTL: config.LoadSettings(ctx, e.kv).TTL}
}

func cmdDump(ctx context.Context, e *env, _ []string) error {
	st, err := e.store.View(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// findUser resolves a wallet key or a display name.
func findUser(st *ledger.State, who string) (string, *ledger.User, bool) {
	if u, ok := st.Users[who]; ok && u != nil {
		return who, u, true
	}
	return st.FindUserByName(ledger.NormalizeName(who))
}

func cmdShow(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <user>")
	}
	st, err := e.store.View(ctx)
	if err != nil {
		return err
	}
	key, u, ok := findUser(st, args[0])
	if !ok {
		return fmt.Errorf("user %q not found", args[0])
	}
	l := e.ledger(ctx)
	fmt.Fprintf(e.out, "key:      %s\nname:     %s\nbalance:  %d\n", key, u.UserName, l.ActiveBalance(u))
	if next, ok := l.NextExpiry(u); ok {
		fmt.Fprintf(e.out, "expires:  %s\n", next.Local().Format(time.DateTime))
	}
	for _, b := range u.Buckets {
		fmt.Fprintf(e.out, "  %3d  until %s  (%s)\n", b.Amount, b.ExpiresAt.Local().Format(time.DateTime), b.Source)
	}
	if pos := ledger.Position(st, u.UserName); pos > 0 {
		fmt.Fprintf(e.out, "position: %d of %d\n", pos, st.Len())
	}
	return nil
}

func cmdCredit(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("credit", pflag.ContinueOnError)
	fs.SetOutput(e.out)
	source := fs.String("source", ledger.SourceManual, "bucket source recorded with the credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: credit [--source S] <user> <amount>")
	}
	who := fs.Arg(0)
	amount, err := strconv.Atoi(fs.Arg(1))
	if err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive integer, got %q", fs.Arg(1))
	}
	l := e.ledger(ctx)
	var balance int
	_, err = e.store.Update(ctx, func(st *ledger.State) error {
		key, u, ok := findUser(st, who)
		if !ok {
			// unknown users get a manual placeholder that merges on their first chat event
			key = ledger.ProvisionalName(ledger.ProvisionalManual, who).Key()
			u = st.UserFor(key, ledger.NormalizeName(who))
		}
		l.Credit(u, amount, *source)
		balance = l.ActiveBalance(u)
		who = key
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "credited %d to %s, balance %d\n", amount, who, balance)
	return nil
}

func cmdSweep(ctx context.Context, e *env, _ []string) error {
	l := e.ledger(ctx)
	_, err := e.store.Update(ctx, func(st *ledger.State) error {
		if !l.Sweep(st) {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, "swept")
	return nil
}

func cmdReset(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("reset", pflag.ContinueOnError)
	fs.SetOutput(e.out)
	yes := fs.Bool("yes", false, "confirm clearing every wallet and queue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("reset clears every wallet and queue; pass --yes to confirm")
	}
	if err := e.store.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "state reset")
	return nil
}

func cmdSealTokens(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("seal-tokens", pflag.ContinueOnError)
	fs.SetOutput(e.out)
	dryRun := fs.Bool("dry-run", false, "list plaintext tokens without changing them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dryRun {
		providers, err := e.db.PlaintextProviders(ctx)
		if err != nil {
			return err
		}
		for _, p := range providers {
			fmt.Fprintf(e.out, "would seal %s\n", p)
		}
		fmt.Fprintf(e.out, "%d plaintext tokens\n", len(providers))
		return nil
	}
	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		return errors.New("ENCRYPTION_KEY is required")
	}
	s, err := crypto.NewAESSealer(key)
	if err != nil {
		return err
	}
	sealed, err := e.db.SealPlaintextTokens(ctx, s)
	for _, p := range sealed {
		fmt.Fprintf(e.out, "sealed %s\n", p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d tokens sealed\n", len(sealed))
	return nil
}

func cmdMigrate(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(e.out)
	down := fs.Bool("down", false, "roll back the most recent migration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *down {
		if err := db.MigrateDown(e.db); err != nil {
			return err
		}
	}
	v, dirty, err := db.MigrationVersion(e.db)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "schema version %d (dirty=%v)\n", v, dirty)
	return nil
}
