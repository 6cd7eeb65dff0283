package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/datasets/internal/logging"
)

// Config tunes the service. Zero values select the defaults.
type Config struct {
	MaxFileSize          int64
	MaxConcurrentUploads int
	UploadWait           time.Duration
	Dispatcher           DispatcherConfig
}

// Service is the entry point for dataset ingestion, review and versioning.
type Service struct {
	store      Store
	blobs      BlobStore
	ingester   *Ingester
	limiter    *UploadLimiter
	dispatcher *Dispatcher
	recorder   Recorder
	now        func() time.Time
}

// NewService wires a service around its collaborators. rec may be nil.
func NewService(store Store, blobs BlobStore, gen MetadataGenerator, cfg Config, rec Recorder) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	s := &Service{
		store:    store,
		blobs:    blobs,
		ingester: NewIngester(blobs, cfg.MaxFileSize, rec),
		limiter:  NewUploadLimiter(cfg.MaxConcurrentUploads, cfg.UploadWait),
		recorder: rec,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.dispatcher = NewDispatcher(gen, cfg.Dispatcher, s.applyOutcome, rec)
	return s
}

// Start launches the metadata workers.
func (s *Service) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
}

// Shutdown waits for in-flight ingestions, then drains the metadata queue.
func (s *Service) Shutdown(ctx context.Context) error {
	return errors.Join(
		s.limiter.WaitForDrain(ctx),
		s.dispatcher.Stop(ctx),
	)
}

// UploadStatus reports ingestion slot usage.
func (s *Service) UploadStatus() LimiterStatus {
	return s.limiter.Status()
}

// Upload ingests a new file, stores it as a processed dataset and queues
// metadata generation. It returns without waiting for the generator.
func (s *Service) Upload(ctx context.Context, u Upload) (Dataset, error) {
	const op = "upload"

	profile, err := s.ingest(ctx, u)
	if err != nil {
		return Dataset{}, err
	}

	status, err := Transition("", TriggerIngested)
	if err != nil {
		return Dataset{}, err
	}
	now := s.now()
	d := Dataset{
		ID:              uuid.NewString(),
		Profile:         profile,
		UploadDate:      now,
		Status:          status,
		MetadataHistory: []HistoryEntry{},
		Versions:        []VersionHistoryEntry{},
		CurrentVersion:  1,
		Revision:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, d); err != nil {
		_ = s.blobs.Delete(profile.FilePath)
		return Dataset{}, storeError(op, d.ID, err)
	}

	logger := logging.ForDataset(ctx, d.ID)
	logger.Info("dataset ingested",
		"file", profile.OriginalFilename,
		"type", profile.FileType,
		"rows", profile.RowCount,
		"columns", len(profile.Columns),
	)

	content, err := BuildPrompt(profile)
	if err != nil {
		s.applyOutcome(ctx, MetadataOutcome{DatasetID: d.ID, Err: err})
		return d, nil
	}
	s.dispatcher.Enqueue(ctx, MetadataJob{DatasetID: d.ID, Content: content})
	return d, nil
}

// ingest runs the pipeline while holding an upload slot.
func (s *Service) ingest(ctx context.Context, u Upload) (Profile, error) {
	release, err := s.limiter.Acquire(ctx)
	if errors.Is(err, ErrTooManyUploads) {
		return Profile{}, fmt.Errorf("ingest: %w", err)
	}
	if err != nil {
		return Profile{}, newError(ErrInvalidInput, "ingest", "upload interrupted", err)
	}
	defer release()
	return s.ingester.Ingest(ctx, u)
}

// applyOutcome records a finished metadata job. Outcomes for datasets that
// left processed in the meantime, or were deleted, are dropped.
func (s *Service) applyOutcome(ctx context.Context, o MetadataOutcome) {
	logger := logging.ForDataset(ctx, o.DatasetID)

	trigger := TriggerAISucceeded
	if o.Err != nil {
		trigger = TriggerAIFailed
	}
	to, err := Transition(StatusProcessed, trigger)
	if err != nil {
		logger.Error("metadata outcome has no transition", "error", err)
		return
	}

	u := Update{IfStatus: SourcesOf(trigger), Status: &to}
	if o.Err == nil {
		md := o.Metadata.clone()
		if len(md.Tags) > MaxTags {
			md.Tags = md.Tags[:MaxTags]
		}
		u.Metadata = &md
		u.PushHistory = &HistoryEntry{
			Metadata:  md,
			CreatedBy: CreatedByAI,
			CreatedAt: s.now(),
		}
	}

	_, err = s.store.Update(ctx, o.DatasetID, u)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		logger.Info("metadata outcome dropped", "reason", err, "status", to)
	case err != nil:
		logger.Error("failed to record metadata outcome", "status", to, "error", err)
	case o.Err != nil:
		logger.Warn("metadata generation failed", "attempts", o.Attempts, "error", o.Err)
	default:
		logger.Info("metadata generated", "attempts", o.Attempts)
	}
}

// Get returns a dataset by id.
func (s *Service) Get(ctx context.Context, id string) (Dataset, error) {
	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Dataset{}, storeError("get dataset", id, err)
	}
	return d, nil
}

// Delete removes the dataset record, its current file and every archived
// version file. There is no soft delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "delete dataset"

	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		return storeError(op, id, err)
	}
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return storeError(op, id, err)
	}

	logger := logging.ForDataset(ctx, id)
	paths := []string{d.FilePath}
	for _, v := range d.Versions {
		paths = append(paths, v.FilePath)
	}
	for _, p := range paths {
		if err := s.blobs.Delete(p); err != nil {
			logger.Warn("failed to remove dataset file", "path", p, "error", err)
		}
	}
	logger.Info("dataset deleted", "files", len(paths))
	return nil
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// ListQuery selects one page of datasets. Zero Page and Limit select the
// defaults.
type ListQuery struct {
	Page       int
	Limit      int
	Search     string
	Categories []string
}

// ListResult is one page of datasets, newest upload first.
type ListResult struct {
	Datasets []Dataset `json:"datasets"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Pages    int       `json:"pages"`
}

// List returns the datasets matching q.
func (s *Service) List(ctx context.Context, q ListQuery) (ListResult, error) {
	const op = "list datasets"

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Page < 1 {
		return ListResult{}, invalidInput(op, "page must be at least 1")
	}
	if q.Limit < 1 || q.Limit > MaxPageLimit {
		return ListResult{}, invalidInput(op, "limit must be between 1 and %d", MaxPageLimit)
	}

	f := Filter{Search: strings.TrimSpace(q.Search)}
	for _, c := range q.Categories {
		if c = strings.TrimSpace(c); c != "" {
			f.Categories = append(f.Categories, c)
		}
	}

	total, err := s.store.Count(ctx, f)
	if err != nil {
		return ListResult{}, upstream(op, err)
	}
	datasets, err := s.store.Find(ctx, f, Page{Skip: (q.Page - 1) * q.Limit, Limit: q.Limit})
	if err != nil {
		return ListResult{}, upstream(op, err)
	}
	if datasets == nil {
		datasets = []Dataset{}
	}

	return ListResult{
		Datasets: datasets,
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
		Pages:    (total + q.Limit - 1) / q.Limit,
	}, nil
}

// FilterOptions lists the values the dataset list can be filtered by.
type FilterOptions struct {
	Statuses   []Status `json:"statuses"`
	Categories []string `json:"categories"`
}

// Filters returns every declared status and the distinct English
// categories currently in use.
func (s *Service) Filters(ctx context.Context) (FilterOptions, error) {
	cats, err := s.store.DistinctCategories(ctx)
	if err != nil {
		return FilterOptions{}, upstream("list filters", err)
	}
	if cats == nil {
		cats = []string{}
	}
	return FilterOptions{Statuses: AllStatuses(), Categories: cats}, nil
}

// Versions returns the archived versions of a dataset, oldest first.
func (s *Service) Versions(ctx context.Context, id string) ([]VersionHistoryEntry, error) {
	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("list versions", id, err)
	}
	if d.Versions == nil {
		return []VersionHistoryEntry{}, nil
	}
	return d.Versions, nil
}
