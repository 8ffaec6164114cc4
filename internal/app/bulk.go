package app

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"horse.fit/intake/internal/bulk"
	"horse.fit/intake/internal/cli"
)

var bulkFileExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".rtf":  true,
	".odt":  true,
}

func runBulk(args []string) int {
	fs := flag.NewFlagSet("bulk", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dir := fs.String("dir", "", "Directory of CV files to ingest")
	jobID := fs.String("job", "", "Job identifier shared by the batch")
	jobTitle := fs.String("job-title", "", "Job title shared by the batch")
	branchID := fs.String("branch", "", "Branch identifier shared by the batch")
	branchName := fs.String("branch-name", "", "Branch name shared by the batch")
	timeout := fs.Duration("timeout", 15*time.Minute, "Batch timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*dir) == "" {
		fmt.Fprintln(os.Stderr, "A directory of CV files is required (-dir)")
		return 2
	}

	uploads, err := collectUploads(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(uploads) == 0 {
		fmt.Fprintf(os.Stderr, "No CV files found in %s\n", *dir)
		return 1
	}

	services, err := connectServices(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer services.Close()

	coordinator := newBulkCoordinator(services.cfg, services.pool, services.resolutions, services.blobs, services.logger)

	req := bulk.Request{
		JobID:      *jobID,
		JobTitle:   *jobTitle,
		BranchID:   *branchID,
		BranchName: *branchName,
		Actor:      currentActor(),
	}

	summary, err := coordinator.Run(services.ctx, req, uploads)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
		return 1
	}

	items, err := services.pool.ListBatchItems(services.ctx, summary.BatchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Batch %d finished but items could not be listed: %v\n", summary.BatchID, err)
		return 1
	}

	fmt.Printf("batch %d %s: %d files\n\n", summary.BatchID, summary.Status, summary.ItemCount)

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
			pointerStringOrEmpty(item.ExtractedBy),
			detail,
		})
	}
	if err := writeTable([]string{"ITEM", "FILE", "STATUS", "SOURCE", "DETAIL"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

// collectUploads reads every recognizable CV file in dir into memory so the
// batch does not depend on the directory staying put mid-run.
func collectUploads(dir string) ([]bulk.Upload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !bulkFileExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	uploads := make([]bulk.Upload, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		uploads = append(uploads, bulk.Upload{
			FileName: name,
			Content:  bytes.NewReader(content),
		})
	}
	return uploads, nil
}
