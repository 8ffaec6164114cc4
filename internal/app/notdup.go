package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/intake/internal/cli"
)

func runNotDuplicate(args []string) int {
	fs := flag.NewFlagSet("not-duplicate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	candidateA := fs.Int64("a", 0, "First candidate id")
	candidateB := fs.Int64("b", 0, "Second candidate id")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *candidateA <= 0 || *candidateB <= 0 {
		fmt.Fprintln(os.Stderr, "Both -a and -b candidate ids are required")
		return 2
	}

	services, err := connectServices(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer services.Close()

	if err := services.resolutions.MarkNotDuplicate(services.ctx, *candidateA, *candidateB, currentActor()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record not-duplicate pair: %v\n", err)
		return 1
	}

	fmt.Printf("candidates %d and %d will no longer match each other\n", *candidateA, *candidateB)
	return 0
}
