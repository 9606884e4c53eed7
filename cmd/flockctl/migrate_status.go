package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"flock/internal/migration"
	"flock/internal/persistence/sqlite"
)

func runMigrateStatus(args []string) int {
	var dbPath, migrationID string

	fs := flag.NewFlagSet("migrate status", flag.ContinueOnError)
	fs.StringVar(&dbPath, "db", "", "path to the flock sqlite database (required)")
	fs.StringVar(&migrationID, "id", "", "migration ID (required)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: flockctl migrate status --db <path> --id <migrationID>")
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

	engine := migration.NewEngine(backend.MigrationTickets())
	ticket, err := engine.Get(context.Background(), migrationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flockctl: %v\n", err)
		return exitGenericFailure
	}

	fmt.Printf("migration   %s\n", ticket.MigrationID)
	fmt.Printf("agent       %s\n", ticket.AgentID)
	fmt.Printf("phase       %s\n", ticket.Phase)
	fmt.Printf("source      %s (%s)\n", ticket.Source.NodeID, ticket.Source.HomeID)
	fmt.Printf("target      %s (%s)\n", ticket.Target.NodeID, ticket.Target.HomeID)
	fmt.Printf("reason      %s\n", ticket.Reason)
	if ticket.Error != "" {
		fmt.Printf("error       %s\n", ticket.Error)
	}
	fmt.Printf("updated_at  %s\n", ticket.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))

	if migration.IsTerminal(ticket.Phase) && ticket.Phase != "COMPLETED" {
		return exitMigrationFailed
	}
	return exitSuccess
}
