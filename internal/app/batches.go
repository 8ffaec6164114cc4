package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/db"
)

func runBatches(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "retry":
			return runBatchRetry(args[1:])
		case "resolve":
			return runBatchResolve(args[1:])
		}
	}

	fs := flag.NewFlagSet("batches", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 25, "Maximum batches to list")
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

	if fs.NArg() == 1 {
		batchID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
		if err != nil || batchID <= 0 {
			fmt.Fprintf(os.Stderr, "Invalid batch id %q\n", fs.Arg(0))
			return 2
		}
		return printBatchDetail(ctx, pool, batchID, outputFormat)
	}

	batches, err := pool.ListBatches(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list batches: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(batches); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode batches: %v\n", err)
			return 1
		}
		return 0
	}

	if len(batches) == 0 {
		fmt.Println("no batches found")
		return 0
	}

	rows := make([][]string, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, []string{
			strconv.FormatInt(batch.BatchID, 10),
			batch.Status,
			strconv.Itoa(batch.ItemCount),
			truncateForTable(batch.JobTitle, 25),
			truncateForTable(batch.BranchName, 20),
			batch.CreatedBy,
			formatUTCTimestamp(batch.CreatedAt),
			formatUTCTimestampPtr(batch.FinishedAt),
		})
	}
	if err := writeTable(
		[]string{"ID", "STATUS", "FILES", "JOB", "BRANCH", "BY", "CREATED", "FINISHED"},
		rows,
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func printBatchDetail(ctx context.Context, pool *db.Pool, batchID int64, outputFormat string) int {
	batch, err := pool.GetBatch(ctx, batchID)
	if err != nil {
		if db.IsNoRows(err) {
			fmt.Fprintf(os.Stderr, "Batch %d not found\n", batchID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load batch: %v\n", err)
		return 1
	}
	items, err := pool.ListBatchItems(ctx, batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load batch items: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		payload := struct {
			Batch *db.BatchSummary `json:"batch"`
			Items []db.ItemRow     `json:"items"`
		}{Batch: batch, Items: items}
		if err := printJSON(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode batch: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("batch %d %s: %s at %s, %d files, created by %s\n\n",
		batch.BatchID, batch.Status, batch.JobTitle, batch.BranchName, batch.ItemCount, batch.CreatedBy)

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		detail := ""
		switch {
		case item.ErrorMessage != nil:
			detail = truncateForTable(*item.ErrorMessage, 50)
		case item.DuplicateOfID != nil:
			detail = fmt.Sprintf("duplicate of %d (%s)", *item.DuplicateOfID, pointerStringOrEmpty(item.MatchType))
		case item.CandidateID != nil:
			detail = "candidate " + strconv.FormatInt(*item.CandidateID, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ItemID, 10),
			truncateForTable(item.FileName, 40),
			item.Status,
			strconv.Itoa(item.RetryCount),
			detail,
		})
	}
	if err := writeTable([]string{"ITEM", "FILE", "STATUS", "RETRIES", "DETAIL"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runBatchRetry(args []string) int {
	fs := flag.NewFlagSet("batches retry", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: intake batches retry [flags] <item-id>")
		return 2
	}
	itemID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || itemID <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid item id %q\n", fs.Arg(0))
		return 2
	}

	services, err := connectServices(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer services.Close()

	coordinator := newBulkCoordinator(services.cfg, services.pool, services.resolutions, services.blobs, services.logger)
	item, err := coordinator.RetryItem(services.ctx, itemID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retry failed: %v\n", err)
		return 1
	}

	fmt.Printf("item %d: %s\n", item.ItemID, item.Status)
	if item.ErrorMessage != nil {
		fmt.Printf("  %s\n", *item.ErrorMessage)
	}
	return 0
}

func runBatchResolve(args []string) int {
	fs := flag.NewFlagSet("batches resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	decision := fs.String("decision", "", "How to resolve the flagged duplicate: merge, link or add_anyway")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: intake batches resolve -decision <merge|link|add_anyway> <item-id>")
		return 2
	}
	itemID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || itemID <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid item id %q\n", fs.Arg(0))
		return 2
	}

	services, err := connectServices(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer services.Close()

	coordinator := newBulkCoordinator(services.cfg, services.pool, services.resolutions, services.blobs, services.logger)
	item, err := coordinator.ResolveDuplicate(services.ctx, itemID, *decision, currentActor())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resolve failed: %v\n", err)
		return 1
	}

	fmt.Printf("item %d: %s", item.ItemID, item.Status)
	if item.CandidateID != nil {
		fmt.Printf(" (candidate %d)", *item.CandidateID)
	}
	fmt.Println()
	return 0
}
