package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/intake/internal/blob"
	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/dedup"
	"horse.fit/intake/internal/extract"
	"horse.fit/intake/internal/globaltime"
	"horse.fit/intake/internal/resolution"
)

type stubProvider struct {
	calls   int
	results []func() (*extract.Result, error)
}

func (p *stubProvider) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	step := p.results[p.calls]
	if p.calls < len(p.results)-1 {
		p.calls++
	}
	return step()
}

func (p *stubProvider) Name() string { return "stub" }

func succeed(result extract.Result) func() (*extract.Result, error) {
	return func() (*extract.Result, error) { return &result, nil }
}

func fail(err error) func() (*extract.Result, error) {
	return func() (*extract.Result, error) { return nil, err }
}

func newTestCoordinator(t *testing.T, provider extract.Provider, maxRetries int) *Coordinator {
	t.Helper()
	blobs, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	return NewCoordinator(nil, blobs, nil, provider, maxRetries, zerolog.Nop())
}

func TestExtractWithRetryRecoversFromTransportErrors(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		fail(errors.New("connection refused")),
		succeed(extract.Result{FirstName: "Omar", LastName: "Aziz", ProviderName: "stub"}),
	}}
	c := newTestCoordinator(t, provider, 2)

	result, err := c.extractWithRetry(context.Background(), "omar.txt", "some cv text")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.FirstName != "Omar" {
		t.Fatalf("first name = %q", result.FirstName)
	}
	if provider.calls != 1 {
		t.Fatalf("calls before success = %d, want 1 retry", provider.calls)
	}
}

func TestExtractWithRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		fail(errors.New("connection refused")),
	}}
	c := newTestCoordinator(t, provider, 2)

	_, err := c.extractWithRetry(context.Background(), "cv.txt", "text")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v, want last transport error", err)
	}
}

func TestExtractWithRetryNeverRetriesLowConfidence(t *testing.T) {
	t.Parallel()

	calls := 0
	provider := &stubProvider{results: []func() (*extract.Result, error){
		func() (*extract.Result, error) {
			calls++
			return nil, fmt.Errorf("%w: 0.20 < 0.55", extract.ErrLowConfidence)
		},
	}}
	c := newTestCoordinator(t, provider, 3)

	_, err := c.extractWithRetry(context.Background(), "cv.txt", "text")
	if !errors.Is(err, extract.ErrLowConfidence) {
		t.Fatalf("err = %v, want low confidence", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, low confidence must not be retried", calls)
	}
}

func TestBuildDraftFromExtraction(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		succeed(extract.Result{
			FirstName:    "Priya",
			LastName:     "Nair",
			Phone:        "07700 900321",
			Email:        "priya.nair@example.com",
			Skills:       []string{"Warehouse", "Forklift"},
			ProviderName: "stub",
		}),
	}}
	c := newTestCoordinator(t, provider, 0)

	key, err := c.blobs.Put("priya_nair_cv.txt", strings.NewReader("Priya Nair has five years of warehouse experience operating forklifts."))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	req := Request{JobID: "job-9", JobTitle: "Picker", BranchID: "br-2", BranchName: "Leeds"}
	draft, extractedBy, err := c.buildDraft(context.Background(), req, "priya_nair_cv.txt", key)
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	if extractedBy != "stub" {
		t.Fatalf("extractedBy = %q", extractedBy)
	}
	if draft.FirstName != "Priya" || draft.Phone != "07700 900321" {
		t.Fatalf("draft = %+v", draft)
	}
	if draft.JobID != "job-9" || draft.BranchName != "Leeds" {
		t.Fatal("batch context not applied to draft")
	}
	if draft.CVObjectKey != key {
		t.Fatalf("cv key = %q, want %q", draft.CVObjectKey, key)
	}
	if draft.CVLanguage != "en" {
		t.Fatalf("cv language = %q, want en", draft.CVLanguage)
	}
}

func TestBuildDraftFallsBackToFilename(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		fail(fmt.Errorf("%w: 0.30 < 0.55", extract.ErrLowConfidence)),
	}}
	c := newTestCoordinator(t, provider, 0)

	key, err := c.blobs.Put("john_smith_cv.txt", strings.NewReader("illegible scan output"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	req := Request{JobID: "job-1", JobTitle: "Operative", BranchID: "br-1", BranchName: "Hull"}
	draft, extractedBy, err := c.buildDraft(context.Background(), req, "john_smith_cv.txt", key)
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	if extractedBy != "filename" {
		t.Fatalf("extractedBy = %q", extractedBy)
	}
	if draft.FirstName != "John" || draft.LastName != "Smith" {
		t.Fatalf("fallback name = %q %q", draft.FirstName, draft.LastName)
	}
	if draft.Phone != "" || draft.Email != "" {
		t.Fatal("fallback draft must not invent contact details")
	}
}

func TestBuildDraftFallsBackOnExtractionOutage(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		fail(errors.New("extraction service unavailable")),
	}}
	c := newTestCoordinator(t, provider, 1)

	key, err := c.blobs.Put("john_smith_cv.txt", strings.NewReader("John Smith, warehouse operative, Hull."))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	req := Request{JobID: "job-1", JobTitle: "Operative", BranchID: "br-1", BranchName: "Hull"}
	draft, extractedBy, err := c.buildDraft(context.Background(), req, "john_smith_cv.txt", key)
	if err != nil {
		t.Fatalf("an extraction outage must not fail the item: %v", err)
	}
	if extractedBy != "filename" {
		t.Fatalf("extractedBy = %q", extractedBy)
	}
	if draft.FirstName != "John" || draft.LastName != "Smith" {
		t.Fatalf("fallback name = %q %q", draft.FirstName, draft.LastName)
	}
}

func TestBuildDraftUnrecognizableFilename(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		fail(fmt.Errorf("%w: 0.10 < 0.55", extract.ErrLowConfidence)),
	}}
	c := newTestCoordinator(t, provider, 0)

	key, err := c.blobs.Put("resume_final_v2.txt", strings.NewReader("illegible"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	req := Request{JobID: "job-1", JobTitle: "Operative", BranchID: "br-1", BranchName: "Hull"}
	_, _, err = c.buildDraft(context.Background(), req, "resume_final_v2.txt", key)
	if err == nil || !errors.Is(err, errNotRetryable) {
		t.Fatalf("err = %v, want non-retryable", err)
	}
	if !strings.Contains(err.Error(), "no name recognizable") {
		t.Fatalf("err = %v", err)
	}
}

type fakeBatchStore struct {
	nextID  int64
	batches map[int64]*db.BatchSummary
	items   map[int64]*db.ItemRow
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		batches: make(map[int64]*db.BatchSummary),
		items:   make(map[int64]*db.ItemRow),
	}
}

func (s *fakeBatchStore) InsertBatch(_ context.Context, batchUUID, jobID, jobTitle, branchID, branchName, createdBy string, itemCount int, at time.Time) (int64, error) {
	s.nextID++
	s.batches[s.nextID] = &db.BatchSummary{
		BatchID:    s.nextID,
		BatchUUID:  batchUUID,
		JobID:      jobID,
		JobTitle:   jobTitle,
		BranchID:   branchID,
		BranchName: branchName,
		Status:     BatchRunning,
		ItemCount:  itemCount,
		CreatedBy:  createdBy,
		CreatedAt:  at,
	}
	return s.nextID, nil
}

func (s *fakeBatchStore) InsertItem(_ context.Context, itemUUID string, batchID int64, position int, fileName string, at time.Time) (int64, error) {
	s.nextID++
	s.items[s.nextID] = &db.ItemRow{
		ItemID:    s.nextID,
		ItemUUID:  itemUUID,
		BatchID:   batchID,
		Position:  position,
		FileName:  fileName,
		Status:    ItemPending,
		CreatedAt: at,
	}
	return s.nextID, nil
}

func (s *fakeBatchStore) UpdateItem(_ context.Context, itemID int64, update db.ItemUpdate, at time.Time) error {
	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("batch item %d not found", itemID)
	}
	item.Status = update.Status
	if update.ErrorMessage != nil || update.Status == ItemSuccess || update.Status == ItemDuplicate {
		item.ErrorMessage = update.ErrorMessage
	}
	if update.CVObjectKey != nil {
		item.CVObjectKey = update.CVObjectKey
	}
	if update.CandidateID != nil {
		item.CandidateID = update.CandidateID
	}
	if update.DuplicateOfID != nil {
		item.DuplicateOfID = update.DuplicateOfID
	}
	if update.MatchType != nil {
		item.MatchType = update.MatchType
	}
	if update.Confidence != nil {
		item.Confidence = update.Confidence
	}
	if update.ExtractedBy != nil {
		item.ExtractedBy = update.ExtractedBy
	}
	if update.BumpRetry {
		item.RetryCount++
	}
	if update.Status == ItemSuccess || update.Status == ItemError || update.Status == ItemDuplicate {
		item.ProcessedAt = &at
	}
	return nil
}

func (s *fakeBatchStore) FinishBatch(_ context.Context, batchID int64, status string, at time.Time) error {
	batch, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %d not found", batchID)
	}
	batch.Status = status
	batch.FinishedAt = &at
	return nil
}

func (s *fakeBatchStore) GetBatch(_ context.Context, batchID int64) (*db.BatchSummary, error) {
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, db.ErrNoRows
	}
	return batch, nil
}

func (s *fakeBatchStore) GetItem(_ context.Context, itemID int64) (*db.ItemRow, error) {
	item, ok := s.items[itemID]
	if !ok {
		return nil, db.ErrNoRows
	}
	return item, nil
}

func (s *fakeBatchStore) itemAt(t *testing.T, batchID int64, position int) *db.ItemRow {
	t.Helper()
	for _, item := range s.items {
		if item.BatchID == batchID && item.Position == position {
			return item
		}
	}
	t.Fatalf("no item at position %d in batch %d", position, batchID)
	return nil
}

// fakeResolutions runs the real matcher over records it created itself, so a
// record created for one file is visible to the check for the next.
type fakeResolutions struct {
	nextID  int64
	records []candidate.Summary
}

func (f *fakeResolutions) CheckDuplicates(_ context.Context, req resolution.CheckRequest) (dedup.Report, error) {
	exclude := make(map[int64]struct{})
	for _, id := range req.Session.IDs() {
		exclude[id] = struct{}{}
	}
	return dedup.Check(req.Draft, f.records, exclude, globaltime.UTC()), nil
}

func (f *fakeResolutions) CreateCandidate(_ context.Context, draft candidate.Draft, _ resolution.CreateOptions) (*db.CandidateRecord, error) {
	f.nextID++
	f.records = append(f.records, candidate.Summary{
		CandidateID:     f.nextID,
		FirstName:       draft.FirstName,
		LastName:        draft.LastName,
		PhoneNormalized: candidate.NormalizePhone(draft.Phone),
		Email:           strings.ToLower(strings.TrimSpace(draft.Email)),
		DuplicateKey:    draft.DuplicateKey(),
		JobID:           draft.JobID,
		JobTitle:        draft.JobTitle,
		BranchID:        draft.BranchID,
		BranchName:      draft.BranchName,
		DuplicateStatus: candidate.StatusNone,
		CreatedAt:       globaltime.UTC(),
	})
	return &db.CandidateRecord{
		CandidateID: f.nextID,
		FirstName:   draft.FirstName,
		LastName:    draft.LastName,
	}, nil
}

func (f *fakeResolutions) Merge(context.Context, resolution.MergeRequest) (*db.CandidateRecord, error) {
	return nil, errors.New("merge is not supported by this fake")
}

func (f *fakeResolutions) Link(context.Context, resolution.LinkRequest) (*db.CandidateRecord, error) {
	return nil, errors.New("link is not supported by this fake")
}

func TestBatchFlagsInBatchPhoneDuplicate(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{results: []func() (*extract.Result, error){
		succeed(extract.Result{FirstName: "Anna", LastName: "Reed", Phone: "07911 123456", ProviderName: "stub"}),
		succeed(extract.Result{FirstName: "Ben", LastName: "Okafor", Phone: "07400 555222", ProviderName: "stub"}),
		succeed(extract.Result{FirstName: "Annie", LastName: "Reed", Phone: "+44 7911 123456", ProviderName: "stub"}),
	}}

	blobs, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	store := newFakeBatchStore()
	resolutions := &fakeResolutions{}
	c := NewCoordinator(store, blobs, resolutions, provider, 0, zerolog.Nop())

	uploads := []Upload{
		{FileName: "anna_reed.txt", Content: strings.NewReader("Anna Reed, picker, five years experience.")},
		{FileName: "ben_okafor.txt", Content: strings.NewReader("Ben Okafor, forklift driver.")},
		{FileName: "annie_reed.txt", Content: strings.NewReader("Annie Reed, picker.")},
	}
	req := Request{JobID: "job-7", JobTitle: "Picker", BranchID: "br-3", BranchName: "Leeds", Actor: "bulk"}

	summary, err := c.Run(context.Background(), req, uploads)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != BatchCompleted {
		t.Fatalf("batch status = %q", summary.Status)
	}

	first := store.itemAt(t, summary.BatchID, 1)
	if first.Status != ItemSuccess || first.CandidateID == nil {
		t.Fatalf("item 1 = %+v, want success with candidate id", first)
	}
	second := store.itemAt(t, summary.BatchID, 2)
	if second.Status != ItemSuccess {
		t.Fatalf("item 2 status = %q", second.Status)
	}

	third := store.itemAt(t, summary.BatchID, 3)
	if third.Status != ItemDuplicate {
		t.Fatalf("item 3 status = %q, want duplicate", third.Status)
	}
	if third.DuplicateOfID == nil || *third.DuplicateOfID != *first.CandidateID {
		t.Fatalf("item 3 duplicate_of = %v, want the record created from item 1 (%d)", third.DuplicateOfID, *first.CandidateID)
	}
	if third.MatchType == nil || *third.MatchType != dedup.MatchTypePhone {
		t.Fatalf("item 3 match type = %v, want phone", third.MatchType)
	}
	if third.CandidateID != nil {
		t.Fatal("a duplicate-flagged item must not create a record")
	}
	if len(resolutions.records) != 2 {
		t.Fatalf("records created = %d, want 2", len(resolutions.records))
	}
}
