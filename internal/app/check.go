package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/dedup"
	"horse.fit/intake/internal/resolution"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	drafts := addDraftFlags(fs)
	selfID := fs.Int64("self", 0, "Exclude this candidate id and its dismissals (re-check after create)")
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

	services, err := connectServices(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer services.Close()

	req := resolution.CheckRequest{Draft: drafts.toDraft()}
	if *selfID > 0 {
		req.SelfID = selfID
	}

	report, err := services.resolutions.CheckDuplicates(services.ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Duplicate check failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			return 1
		}
		return exitCodeForAction(report.RecommendedAction)
	}

	printReport(report)
	return exitCodeForAction(report.RecommendedAction)
}

// exitCodeForAction makes the check command scriptable: 0 allow, 3 warn,
// 4 block.
func exitCodeForAction(action string) int {
	switch action {
	case dedup.ActionBlock:
		return 4
	case dedup.ActionWarn:
		return 3
	default:
		return 0
	}
}

func printReport(report dedup.Report) {
	if !report.HasDuplicates {
		fmt.Println("no duplicate matches")
		return
	}

	fmt.Printf("recommended action: %s\n\n", report.RecommendedAction)

	rows := make([][]string, 0, len(report.Matches))
	for _, match := range report.Matches {
		rows = append(rows, []string{
			strconv.FormatInt(match.Candidate.CandidateID, 10),
			truncateForTable(match.Candidate.FullName(), 30),
			match.MatchType,
			strconv.Itoa(match.Confidence),
			match.Severity,
			strconv.Itoa(match.DaysSinceApplied),
			truncateForTable(match.Scenario, 60),
		})
	}
	if err := writeTable(
		[]string{"ID", "NAME", "MATCH", "CONF", "SEVERITY", "AGE(D)", "SCENARIO"},
		rows,
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
	}
}
