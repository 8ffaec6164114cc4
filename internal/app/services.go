package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/intake/internal/audit"
	"horse.fit/intake/internal/blob"
	"horse.fit/intake/internal/bulk"
	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/config"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/extract"
	"horse.fit/intake/internal/logging"
	"horse.fit/intake/internal/resolution"
)

// cliServices bundles the wiring shared by commands that write through the
// resolution layer.
type cliServices struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cfg         *config.Config
	pool        *db.Pool
	logger      zerolog.Logger
	blobs       *blob.Store
	resolutions *resolution.Service
}

func (s *cliServices) Close() {
	s.pool.Close()
	s.cancel()
}

func connectServices(timeout time.Duration, envLoader *cli.EnvLoader) (*cliServices, error) {
	ctx, cancel, pool, err := connectReadPool(timeout, envLoader)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		cancel()
		pool.Close()
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		cancel()
		pool.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	resolutions, blobs, err := newResolutionService(cfg, pool, logger)
	if err != nil {
		cancel()
		pool.Close()
		return nil, err
	}

	return &cliServices{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		pool:        pool,
		logger:      logger,
		blobs:       blobs,
		resolutions: resolutions,
	}, nil
}

func newResolutionService(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*resolution.Service, *blob.Store, error) {
	blobs, err := blob.NewStore(cfg.CVStorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open cv storage: %w", err)
	}
	recorder := audit.NewRecorder(pool, logger)
	return resolution.NewService(pool, blobs, recorder, logger), blobs, nil
}

func newBulkCoordinator(cfg *config.Config, pool *db.Pool, resolutions *resolution.Service, blobs *blob.Store, logger zerolog.Logger) *bulk.Coordinator {
	provider := extract.NewHTTPProvider(
		cfg.ExtractionEndpoint,
		time.Duration(cfg.ExtractionTimeoutSecs)*time.Second,
		cfg.ExtractionMinConfidence,
	)
	return bulk.NewCoordinator(pool, blobs, resolutions, provider, cfg.BulkItemMaxRetries, logger)
}

// draftFlags collects the candidate fields shared by check, add, and the
// resolution subcommands.
type draftFlags struct {
	firstName      *string
	lastName       *string
	phone          *string
	email          *string
	jobID          *string
	jobTitle       *string
	branchID       *string
	branchName     *string
	skills         *string
	qualifications *string
}

func addDraftFlags(fs *flag.FlagSet) *draftFlags {
	return &draftFlags{
		firstName:      fs.String("first", "", "Candidate first name"),
		lastName:       fs.String("last", "", "Candidate last name"),
		phone:          fs.String("phone", "", "Candidate phone number"),
		email:          fs.String("email", "", "Candidate email address"),
		jobID:          fs.String("job", "", "Job id the candidate applies for"),
		jobTitle:       fs.String("job-title", "", "Job title for display"),
		branchID:       fs.String("branch", "", "Branch id handling the application"),
		branchName:     fs.String("branch-name", "", "Branch name for display"),
		skills:         fs.String("skills", "", "Comma-separated skills"),
		qualifications: fs.String("qualifications", "", "Comma-separated qualifications"),
	}
}

func (f *draftFlags) toDraft() candidate.Draft {
	return candidate.Draft{
		FirstName:      strings.TrimSpace(*f.firstName),
		LastName:       strings.TrimSpace(*f.lastName),
		Phone:          strings.TrimSpace(*f.phone),
		Email:          strings.TrimSpace(*f.email),
		JobID:          strings.TrimSpace(*f.jobID),
		JobTitle:       strings.TrimSpace(*f.jobTitle),
		BranchID:       strings.TrimSpace(*f.branchID),
		BranchName:     strings.TrimSpace(*f.branchName),
		Skills:         splitCommaList(*f.skills),
		Qualifications: splitCommaList(*f.qualifications),
	}
}

func splitCommaList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func currentActor() string {
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return "cli"
}
