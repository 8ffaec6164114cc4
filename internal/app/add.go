package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/dedup"
	"horse.fit/intake/internal/resolution"
)

func runAdd(args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	drafts := addDraftFlags(fs)
	decisionFlag := fs.String("on-duplicate", "", "Non-interactive decision for every match: add_anyway, merge, link or dismiss")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	decide, err := decisionFuncFor(*decisionFlag)
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

	outcome, err := services.resolutions.Resolve(services.ctx, drafts.toDraft(), currentActor(), decide)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Intake failed: %v\n", err)
		return 1
	}

	fmt.Printf("%s: candidate %d (%s %s)\n",
		outcome.Decision,
		outcome.Candidate.CandidateID,
		outcome.Candidate.FirstName,
		outcome.Candidate.LastName)
	return 0
}

// decisionFuncFor returns either a fixed decision for scripted use or an
// interactive prompt on stdin.
func decisionFuncFor(fixed string) (resolution.DecisionFunc, error) {
	switch fixed {
	case "":
		return promptDecision, nil
	case resolution.DecisionAddAnyway, resolution.DecisionMerge,
		resolution.DecisionLink, resolution.DecisionDismiss:
		return func(dedup.Report, dedup.Match) (string, error) {
			return fixed, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown --on-duplicate value %q", fixed)
	}
}

func promptDecision(report dedup.Report, match dedup.Match) (string, error) {
	fmt.Printf("\npossible duplicate: %s (id %d)\n", match.Candidate.FullName(), match.Candidate.CandidateID)
	fmt.Printf("  match: %s, confidence %d, severity %s\n", match.MatchType, match.Confidence, match.Severity)
	fmt.Printf("  %s\n", match.Scenario)
	if len(report.Matches) > 1 {
		fmt.Printf("  (%d further matches pending)\n", len(report.Matches)-1)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("decision [merge/link/add_anyway/dismiss/abort]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read decision: %w", err)
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "merge", "m":
			return resolution.DecisionMerge, nil
		case "link", "l":
			return resolution.DecisionLink, nil
		case "add_anyway", "add", "a":
			return resolution.DecisionAddAnyway, nil
		case "dismiss", "d":
			return resolution.DecisionDismiss, nil
		case "abort", "q":
			return "", errors.New("aborted by operator")
		}
		fmt.Println("unrecognized choice")
	}
}
