package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/db"
)

func runShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: intake show [flags] <candidate-id>")
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

	record, err := pool.GetCandidate(ctx, candidateID)
	if err != nil {
		if db.IsNoRows(err) {
			fmt.Fprintf(os.Stderr, "Candidate %d not found\n", candidateID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load candidate: %v\n", err)
		return 1
	}

	clusterRoot := record.CandidateID
	if record.DuplicateStatus == candidate.StatusLinked && record.PrimaryRecordID != nil {
		clusterRoot = *record.PrimaryRecordID
	}
	cluster, err := pool.ListClusterMembers(ctx, clusterRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load duplicate cluster: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		payload := struct {
			Candidate *db.CandidateRecord    `json:"candidate"`
			Cluster   []db.CandidateListItem `json:"cluster,omitempty"`
		}{Candidate: record, Cluster: cluster}
		if err := printJSON(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode candidate: %v\n", err)
			return 1
		}
		return 0
	}

	printCandidateDetail(record, cluster)
	return 0
}

func printCandidateDetail(record *db.CandidateRecord, cluster []db.CandidateListItem) {
	fmt.Printf("candidate %d (%s)\n", record.CandidateID, record.CandidateUUID)
	fmt.Printf("  name:       %s %s\n", record.FirstName, record.LastName)
	fmt.Printf("  phone:      %s\n", record.PhoneNormalized)
	fmt.Printf("  email:      %s\n", record.Email)
	fmt.Printf("  job:        %s (%s)\n", record.JobTitle, record.JobID)
	fmt.Printf("  branch:     %s (%s)\n", record.BranchName, record.BranchID)
	if len(record.Skills) > 0 {
		fmt.Printf("  skills:     %s\n", strings.Join(record.Skills, ", "))
	}
	if len(record.Qualifications) > 0 {
		fmt.Printf("  quals:      %s\n", strings.Join(record.Qualifications, ", "))
	}
	if record.CVFileName != nil {
		language := pointerStringOrEmpty(record.CVLanguage)
		if language != "" {
			language = " [" + language + "]"
		}
		fmt.Printf("  cv:         %s%s\n", *record.CVFileName, language)
	}
	fmt.Printf("  status:     %s\n", record.DuplicateStatus)
	if record.PrimaryRecordID != nil {
		fmt.Printf("  primary:    %d\n", *record.PrimaryRecordID)
	}
	if len(record.NotDuplicateOf) > 0 {
		fmt.Printf("  not-dup-of: %s\n", joinInt64s(record.NotDuplicateOf))
	}
	if record.DuplicateReviewedAt != nil {
		fmt.Printf("  reviewed:   %s by %s\n",
			formatUTCTimestampPtr(record.DuplicateReviewedAt),
			pointerStringOrEmpty(record.DuplicateReviewedBy))
	}
	fmt.Printf("  created:    %s\n", formatUTCTimestamp(record.CreatedAt))
	fmt.Printf("  updated:    %s (version %d)\n", formatUTCTimestamp(record.UpdatedAt), record.Version)

	if len(record.ApplicationHistory) > 0 {
		fmt.Println("\napplication history:")
		for _, entry := range record.ApplicationHistory {
			fmt.Printf("  %s  %s at %s\n",
				formatUTCTimestamp(entry.AppliedAt),
				entry.JobTitle,
				entry.BranchName)
		}
	}

	if len(cluster) > 1 {
		fmt.Println("\nduplicate cluster:")
		for _, member := range cluster {
			marker := " "
			if member.CandidateID == record.CandidateID {
				marker = "*"
			}
			fmt.Printf("  %s %d  %s  %s\n", marker, member.CandidateID, member.DuplicateStatus, member.FullName)
		}
	}
}

func joinInt64s(values []int64) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, strconv.FormatInt(value, 10))
	}
	return strings.Join(parts, ", ")
}
