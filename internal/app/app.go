package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "check":
		return runCheck(args[1:])
	case "add":
		return runAdd(args[1:])
	case "not-duplicate":
		return runNotDuplicate(args[1:])
	case "bulk":
		return runBulk(args[1:])
	case "candidates":
		return runCandidates(args[1:])
	case "show":
		return runShow(args[1:])
	case "activity":
		return runActivity(args[1:])
	case "batches":
		return runBatches(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "intake CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  intake <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health         Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  check          Run a duplicate check for a draft without creating it")
	fmt.Fprintln(os.Stderr, "  add            Create a candidate, resolving duplicate matches interactively")
	fmt.Fprintln(os.Stderr, "  not-duplicate  Permanently mark two candidates as not duplicates")
	fmt.Fprintln(os.Stderr, "  bulk           Process a directory of CV files as one batch")
	fmt.Fprintln(os.Stderr, "  candidates     List candidates")
	fmt.Fprintln(os.Stderr, "  show           Show one candidate with its duplicate cluster")
	fmt.Fprintln(os.Stderr, "  activity       Show the audit trail for one candidate")
	fmt.Fprintln(os.Stderr, "  batches        List bulk batches or inspect one batch")
	fmt.Fprintln(os.Stderr, "  serve          Start the HTTP API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"intake <command> -h\" for command-specific flags.")
}
