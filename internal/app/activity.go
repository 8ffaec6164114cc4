package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/intake/internal/cli"
)

func runActivity(args []string) int {
	fs := flag.NewFlagSet("activity", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 50, "Maximum entries to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: intake activity [flags] <candidate-id>")
		return 2
	}
	candidateID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || candidateID <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid candidate id %q\n", fs.Arg(0))
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	entries, err := pool.ListActivityForEntity(ctx, candidateID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list activity: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(entries); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode activity: %v\n", err)
			return 1
		}
		return 0
	}

	if len(entries) == 0 {
		fmt.Printf("no activity recorded for candidate %d\n", candidateID)
		return 0
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			formatUTCTimestamp(entry.CreatedAt),
			entry.Action,
			truncateForTable(entry.Description, 60),
			entry.Actor,
		})
	}
	if err := writeTable([]string{"WHEN", "ACTION", "DESCRIPTION", "ACTOR"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
