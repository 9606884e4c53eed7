// Command flockctl is the operator-facing CLI surface: inspecting
// migration tickets and issuing the one destructive action operators need
// outside the normal orchestrator flow, a forced rollback of a stuck
// migration. Dispatch follows an os.Args-based subcommand switch, with a
// per-command flag.NewFlagSet, a manual usage printer per subcommand, and
// os.Exit with a distinct code per failure class.
package main

import (
	"fmt"
	"os"
)

// Exit codes, §6.
const (
	exitSuccess        = 0
	exitGenericFailure = 1
	exitInvalidArgs    = 2
	exitMigrationFailed = 3
	exitUnauthorized   = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitInvalidArgs
	}

	switch args[0] {
	case "migrate":
		return runMigrateCommand(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "flockctl: unknown command %q\n\n", args[0])
		printUsage()
		return exitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "flockctl - flock operator CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  flockctl migrate status --db <path> --id <migrationID>")
	fmt.Fprintln(os.Stderr, "  flockctl migrate force-rollback --db <path> --id <migrationID> [--yes]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Exit codes:")
	fmt.Fprintln(os.Stderr, "  0  success")
	fmt.Fprintln(os.Stderr, "  1  generic failure")
	fmt.Fprintln(os.Stderr, "  2  invalid arguments")
	fmt.Fprintln(os.Stderr, "  3  migration failed")
	fmt.Fprintln(os.Stderr, "  4  unauthorized")
}

func runMigrateCommand(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "flockctl migrate: expected a subcommand (status, force-rollback)")
		return exitInvalidArgs
	}
	switch args[0] {
	case "status":
		return runMigrateStatus(args[1:])
	case "force-rollback":
		return runMigrateForceRollback(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "flockctl migrate: unknown subcommand %q\n", args[0])
		return exitInvalidArgs
	}
}
