package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"flock/internal/logx"
	"flock/internal/migration"
	"flock/internal/persistence/sqlite"
)

// runMigrateForceRollback aborts a stuck migration ticket directly,
// bypassing the orchestrator. This is destructive (it does not attempt to
// unwind any in-flight transfer) so it requires an interactive
// confirmation unless --yes is passed.
func runMigrateForceRollback(args []string) int {
	var dbPath, migrationID, reason string
	var skipConfirm bool

	fs := flag.NewFlagSet("migrate force-rollback", flag.ContinueOnError)
	fs.StringVar(&dbPath, "db", "", "path to the flock sqlite database (required)")
	fs.StringVar(&migrationID, "id", "", "migration ID (required)")
	fs.StringVar(&reason, "reason", "operator forced rollback", "reason recorded on the ticket")
	fs.BoolVar(&skipConfirm, "yes", false, "skip the interactive confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: flockctl migrate force-rollback --db <path> --id <migrationID> [--reason <text>] [--yes]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}
	if dbPath == "" || migrationID == "" {
		fs.Usage()
		return exitInvalidArgs
	}

	backend, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flockctl: open database: %v\n", err)
		return exitGenericFailure
	}
	defer backend.Close()

	ctx := context.Background()
	engine := migration.NewEngine(backend.MigrationTickets())
	engine.SetAudit(backend.Audit(), logx.New("flockctl"))
	ticket, err := engine.Get(ctx, migrationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flockctl: %v\n", err)
		return exitGenericFailure
	}
	if migration.IsTerminal(ticket.Phase) {
		fmt.Printf("migration %s is already terminal (%s); nothing to roll back\n", migrationID, ticket.Phase)
		return exitSuccess
	}

	if !skipConfirm {
		confirmed, err := confirmDestructive(fmt.Sprintf(
			"Force-abort migration %s (agent %s, currently in phase %s)? This does not notify the target node.",
			migrationID, ticket.AgentID, ticket.Phase))
		if err != nil {
			fmt.Fprintf(os.Stderr, "flockctl: reading confirmation: %v\n", err)
			return exitGenericFailure
		}
		if !confirmed {
			fmt.Println("aborted: not confirmed")
			return exitGenericFailure
		}
	}

	if err := engine.Abort(ctx, migrationID, reason); err != nil {
		fmt.Fprintf(os.Stderr, "flockctl: force rollback failed: %v\n", err)
		return exitMigrationFailed
	}

	fmt.Printf("migration %s aborted\n", migrationID)
	return exitSuccess
}

// confirmDestructive prints prompt and reads a y/N confirmation.
// golang.org/x/term.IsTerminal guards against blocking on a prompt when
// stdin isn't interactive (e.g. piped in a script), refusing by default
// rather than hanging.
func confirmDestructive(prompt string) (bool, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return false, fmt.Errorf("stdin is not a terminal; rerun with --yes to confirm non-interactively")
	}

	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	return isYes(line), nil
}

func isYes(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "y" || s == "yes"
}
