package main

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zuhreplanet/sohbet/pkg/config"
)

type sweepOptions struct {
	DatabasePath string
	DryRun       bool
}

func parseSweepArgs(cfg *config.Config, args []string) (sweepOptions, error) {
	opts := sweepOptions{DatabasePath: cfg.DatabasePath}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dry-run":
			opts.DryRun = true
		case "--database":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return opts, fmt.Errorf("--database requires a path")
			}
			opts.DatabasePath = args[i]
		default:
			return opts, fmt.Errorf("unknown sweep flag: %s", args[i])
		}
	}

	if strings.TrimSpace(opts.DatabasePath) == "" {
		return opts, fmt.Errorf("database path cannot be empty")
	}

	return opts, nil
}

// runSweep soft-deletes every expired disappearing message in one
// transaction. The read path already sweeps per conversation on
// access; this command bounds the lifetime of rows in conversations
// nobody opens anymore.
func runSweep(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseSweepArgs(cfg, args)
	if err != nil {
		return err
	}
	return runSweepWithOptions(out, opts)
}

func runSweepWithOptions(out io.Writer, opts sweepOptions) error {
	dbConn, err := sql.Open("sqlite3", opts.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := dbConn.Exec("BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to start sweep transaction: %w", err)
	}
	inTx := true
	defer func() {
		if inTx {
			_, _ = dbConn.Exec("ROLLBACK")
		}
	}()

	now := time.Now().UTC()

	var candidates int64
	err = dbConn.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE is_deleted = 0 AND expires_at IS NOT NULL AND expires_at <= ?
	`, now).Scan(&candidates)
	if err != nil {
		return fmt.Errorf("failed to count expired messages: %w", err)
	}

	if opts.DryRun {
		fmt.Fprintf(out, "Dry-run successful. Database: %s\n", opts.DatabasePath)
		fmt.Fprintf(out, "Would sweep %d expired message(s).\n", candidates)
		if _, err := dbConn.Exec("ROLLBACK"); err != nil {
			return fmt.Errorf("failed to finish dry-run rollback: %w", err)
		}
		inTx = false
		return nil
	}

	if candidates == 0 {
		if _, err := dbConn.Exec("COMMIT"); err != nil {
			return fmt.Errorf("failed to finish sweep transaction: %w", err)
		}
		inTx = false
		fmt.Fprintln(out, "Sweep completed. No expired messages found.")
		return nil
	}

	result, err := dbConn.Exec(`
		UPDATE messages
		SET is_deleted = 1, deleted_at = ?
		WHERE is_deleted = 0 AND expires_at IS NOT NULL AND expires_at <= ?
	`, now, now)
	if err != nil {
		return fmt.Errorf("failed to sweep expired messages: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count swept messages: %w", err)
	}
	if swept != candidates {
		return fmt.Errorf("sweep count mismatch: swept %d, expected %d", swept, candidates)
	}

	var remaining int64
	err = dbConn.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE is_deleted = 0 AND expires_at IS NOT NULL AND expires_at <= ?
	`, now).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("failed to validate sweep: %w", err)
	}
	if remaining != 0 {
		return fmt.Errorf("%d expired message(s) left after sweep", remaining)
	}

	if _, err := dbConn.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit sweep: %w", err)
	}
	inTx = false

	fmt.Fprintf(out, "Sweep completed. Database: %s\n", opts.DatabasePath)
	fmt.Fprintf(out, "Swept %d expired message(s).\n", swept)
	return nil
}
