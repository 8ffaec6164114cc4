package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/db"
)

func runCandidates(args []string) int {
	fs := flag.NewFlagSet("candidates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	branchID := fs.String("branch", "", "Filter by branch id")
	jobID := fs.String("job", "", "Filter by job id")
	status := fs.String("status", "", "Filter by duplicate status (none, primary, linked, reviewed)")
	limit := fs.Int("limit", 50, "Maximum rows to return")
	offset := fs.Int("offset", 0, "Rows to skip")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	items, err := pool.ListCandidates(ctx, db.CandidateListOptions{
		BranchID:        *branchID,
		JobID:           *jobID,
		DuplicateStatus: *status,
		Limit:           *limit,
		Offset:          *offset,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list candidates: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode candidates: %v\n", err)
			return 1
		}
		return 0
	}

	if len(items) == 0 {
		fmt.Println("no candidates found")
		return 0
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.CandidateID, 10),
			truncateForTable(item.FullName, 30),
			item.PhoneNormalized,
			truncateForTable(item.Email, 30),
			truncateForTable(item.JobTitle, 25),
			truncateForTable(item.BranchName, 20),
			item.DuplicateStatus,
			formatUTCTimestamp(item.CreatedAt),
		})
	}
	if err := writeTable(
		[]string{"ID", "NAME", "PHONE", "EMAIL", "JOB", "BRANCH", "STATUS", "CREATED"},
		rows,
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
