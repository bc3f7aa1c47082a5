package main

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zuhreplanet/sohbet/internal/models"
	"github.com/zuhreplanet/sohbet/pkg/config"
)

type promoteOptions struct {
	DatabasePath string
	Username     string
}

func parsePromoteArgs(cfg *config.Config, args []string) (promoteOptions, error) {
	opts := promoteOptions{DatabasePath: cfg.DatabasePath}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--database":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return opts, fmt.Errorf("--database requires a path")
			}
			opts.DatabasePath = args[i]
		default:
			if strings.HasPrefix(args[i], "-") {
				return opts, fmt.Errorf("unknown promote flag: %s", args[i])
			}
			if opts.Username != "" {
				return opts, fmt.Errorf("promote takes a single username")
			}
			opts.Username = args[i]
		}
	}

	if strings.TrimSpace(opts.Username) == "" {
		return opts, fmt.Errorf("missing username (usage: sohbet promote <username>)")
	}
	if strings.TrimSpace(opts.DatabasePath) == "" {
		return opts, fmt.Errorf("database path cannot be empty")
	}

	return opts, nil
}

// runPromote grants the admin role to an existing user. There is no
// signup path to admin; moderators are appointed from the shell.
func runPromote(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parsePromoteArgs(cfg, args)
	if err != nil {
		return err
	}
	return runPromoteWithOptions(out, opts)
}

func runPromoteWithOptions(out io.Writer, opts promoteOptions) error {
	dbConn, err := sql.Open("sqlite3", opts.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	result, err := dbConn.Exec(
		"UPDATE users SET role = ? WHERE username = ?",
		models.RoleAdmin, opts.Username,
	)
	if err != nil {
		return fmt.Errorf("failed to promote user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm promotion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user not found: %s", opts.Username)
	}

	fmt.Fprintf(out, "User %s is now an admin.\n", opts.Username)
	return nil
}
