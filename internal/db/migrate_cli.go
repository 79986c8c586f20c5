package db

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrUnknownMigrateAction is returned for unrecognised migrate subcommands.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand handles the 'migrate' subcommand: up, down, status or
// version <n>. Output goes to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return fmt.Errorf("%w: none given", ErrUnknownMigrateAction)
		}
		return nil
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return err
	}

	// open without migrating; the subcommand manages the schema
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: navmap migrate version <version_number>")
		}
		target, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[1], err)
		}
		if err := database.MigrateTo(migrationsFS, uint(target)); err != nil {
			return err
		}
	case "status":
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("%w: %s", ErrUnknownMigrateAction, args[0])
	}

	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-execution; inspect the database before continuing")
	}
	return nil
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: navmap migrate <action>

Actions:
  up          Apply all pending migrations
  down        Roll back the most recent migration
  status      Show the current schema version
  version N   Migrate up or down to version N
  help        Show this help
`)
}
