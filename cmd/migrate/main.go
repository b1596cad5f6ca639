package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/saviobatista/vessel-tracker/internal/config"
	"github.com/saviobatista/vessel-tracker/internal/db"
	"github.com/saviobatista/vessel-tracker/internal/db/migrations"
	"github.com/saviobatista/vessel-tracker/internal/logging"
)

const (
	commandUp     = "up"
	commandDown   = "down"
	commandStatus = "status"
)

type options struct {
	dbURL   string
	timeout time.Duration
	command string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		logging.Error().Err(err).Msg("Invalid arguments")
		os.Exit(2)
	}

	if err := connectAndRun(opts, os.Stdout); err != nil {
		logging.Error().Err(err).Str("command", opts.command).Msg("Migration failed")
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: migrate [flags] [up|down|status]\n\n")
		fs.PrintDefaults()
	}

	defaultDB := os.Getenv("DB_CONN_STR")
	if defaultDB == "" {
		defaultDB = config.DefaultDBConnStr
	}

	opts := &options{}
	fs.StringVarP(&opts.dbURL, "db", "d", defaultDB, "Database connection string")
	fs.DurationVarP(&opts.timeout, "timeout", "t", time.Minute, "Overall timeout")
	rollback := fs.Bool("rollback", false, "Rollback the last migration (same as the down command)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.command = commandUp
	if *rollback {
		opts.command = commandDown
	}
	switch fs.NArg() {
	case 0:
	case 1:
		opts.command = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one command, got %d", fs.NArg())
	}

	switch opts.command {
	case commandUp, commandDown, commandStatus:
	default:
		return nil, fmt.Errorf("unknown command %q", opts.command)
	}
	if opts.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", opts.timeout)
	}

	return opts, nil
}

func connectAndRun(opts *options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	client, err := db.New(opts.dbURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing database")
		}
	}()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return run(ctx, client.DB(), opts.command, out)
}

// run executes command against the database and writes a short report to out
func run(ctx context.Context, conn *sql.DB, command string, out io.Writer) error {
	migrator := migrations.New(conn)
	list := migrations.All()

	switch command {
	case commandUp:
		applied, err := migrator.Migrate(ctx, list)
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		fmt.Fprintf(out, "applied %d migration(s)\n", applied)
	case commandDown:
		reverted, err := migrator.Rollback(ctx, list)
		if errors.Is(err, migrations.ErrNothingToRollback) {
			fmt.Fprintln(out, "nothing to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		fmt.Fprintf(out, "rolled back %s\n", reverted.Name)
	case commandStatus:
		status, err := migrator.Status(ctx, list)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, s := range status {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Fprintf(out, "%-8s %s\n", state, s.Name)
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	return nil
}
