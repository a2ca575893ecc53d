package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"vericase/internal/util"
	"vericase/pkg/domain"
	"vericase/pkg/queue"
	"vericase/pkg/search"
	"vericase/pkg/storage"
	"vericase/pkg/store"
	"vericase/services/ingest/internal/attachment"
	"vericase/services/ingest/internal/container"
	"vericase/services/ingest/internal/extract"
	"vericase/services/ingest/internal/thread"
)

var (
	// ErrContainerNotFound is returned when the trigger names an unknown container.
	ErrContainerNotFound = errors.New("container not found")
	// ErrContainerNotRunnable is returned when the container is not NEW.
	ErrContainerNotRunnable = errors.New("container not runnable")
)

// JobQueue dispatches runs to workers.
type JobQueue interface {
	Enqueue(ctx context.Context, trigger queue.Trigger) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config holds runtime dependencies and tuning. Search and Jobs are
// optional; search publication is best effort.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore
	Opener  container.Opener
	Search  search.Indexer
	Jobs    JobQueue
	Logger  *slog.Logger
	Metrics *Metrics

	PrecountMessages bool
	ProgressEvery    int
	TempDir          string
}

// App runs container ingestion.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	opener        container.Opener
	search        search.Indexer
	jobs          JobQueue
	logger        *slog.Logger
	metrics       *Metrics
	precount      bool
	progressEvery int
	tempDir       string
}

// New constructs the orchestrator.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Opener == nil {
		return nil, errors.New("container opener required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progressEvery := cfg.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 100
	}
	return &App{
		store:         cfg.Store,
		objects:       cfg.Objects,
		opener:        cfg.Opener,
		search:        cfg.Search,
		jobs:          cfg.Jobs,
		logger:        logger,
		metrics:       cfg.Metrics,
		precount:      cfg.PrecountMessages,
		progressEvery: progressEvery,
		tempDir:       cfg.TempDir,
	}, nil
}

// Enqueue schedules a run for trigger.
func (a *App) Enqueue(ctx context.Context, trigger queue.Trigger) (queue.JobStatus, error) {
	if a.jobs == nil {
		return queue.JobStatus{}, errors.New("job queue not configured")
	}
	c, ok, err := a.store.GetContainer(trigger.ContainerID)
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("load container: %w", err)
	}
	if !ok {
		return queue.JobStatus{}, fmt.Errorf("%w: %s", ErrContainerNotFound, trigger.ContainerID)
	}
	if c.Status != domain.ContainerNew {
		return queue.JobStatus{}, fmt.Errorf("%w: %s is %s", ErrContainerNotRunnable, c.ID, c.Status)
	}
	fillTrigger(&trigger, c)
	return a.jobs.Enqueue(ctx, trigger)
}

// GetJob returns a queued job by id.
func (a *App) GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error) {
	if a.jobs == nil {
		return queue.JobStatus{}, false, errors.New("job queue not configured")
	}
	return a.jobs.GetJob(ctx, jobID)
}

// HandleJob is the queue consumer entry point.
func (a *App) HandleJob(ctx context.Context, job queue.JobStatus) error {
	_, err := a.Process(ctx, job.Trigger)
	return err
}

// Process runs one container from NEW to READY or FAILED. Errors after the
// PROCESSING transition are marked permanent: the container is terminal, so a
// retry could not run it again.
func (a *App) Process(ctx context.Context, trigger queue.Trigger) (stats domain.RunStatistics, err error) {
	start := time.Now()
	c, ok, err := a.store.GetContainer(trigger.ContainerID)
	if err != nil {
		return stats, fmt.Errorf("load container: %w", err)
	}
	if !ok {
		return stats, queue.Permanent(fmt.Errorf("%w: %s", ErrContainerNotFound, trigger.ContainerID))
	}
	fillTrigger(&trigger, c)
	logger := a.logger.With("containerId", c.ID, "caseId", trigger.CaseID)

	runID := uuid.NewString()
	_, err = a.store.TransitionContainer(c.ID, domain.ContainerProcessing, map[string]any{
		"status":     string(domain.ContainerProcessing),
		"run_id":     runID,
		"started_at": start.UTC().Format(time.RFC3339),
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		return stats, queue.Permanent(fmt.Errorf("%w: %s is %s", ErrContainerNotRunnable, c.ID, c.Status))
	}
	if err != nil {
		return stats, fmt.Errorf("mark processing: %w", err)
	}
	logger = logger.With("runId", runID)
	logger.Info("container run started", "storageKey", trigger.StorageKey)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		elapsed := time.Since(start)
		if err != nil {
			a.failRun(c.ID, err, logger)
			a.metrics.observeRun("failed", elapsed)
			err = queue.Permanent(err)
			return
		}
		a.metrics.observeRun("ready", elapsed)
	}()

	return a.run(ctx, trigger, start, logger)
}

func (a *App) run(ctx context.Context, trigger queue.Trigger, start time.Time, logger *slog.Logger) (domain.RunStatistics, error) {
	var stats domain.RunStatistics

	path, cleanup, err := a.download(ctx, trigger.StorageKey)
	if err != nil {
		return stats, err
	}
	defer cleanup()

	ctr, err := a.opener.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open container: %w", err)
	}
	defer func() {
		if cerr := ctr.Close(); cerr != nil {
			logger.Warn("container close failed", "err", cerr)
		}
	}()
	root, err := ctr.Root()
	if err != nil {
		return stats, fmt.Errorf("open container: %w", err)
	}

	total := 0
	if a.precount {
		total = countMessages(root, logger)
		logger.Info("container messages counted", "total", total)
	}
	a.reportProgress(trigger.ContainerID, 0, total, logger)
	a.ensureIndex(ctx, logger)

	attachments := attachment.NewStore(a.objects, a.store, attachment.Scope{
		ContainerID: trigger.ContainerID,
		CaseID:      trigger.CaseID,
		CompanyID:   trigger.CompanyID,
	}, logger)
	extractor := extract.New(extract.Options{
		Attachments:   attachments,
		Logger:        logger,
		ProgressEvery: a.progressEvery,
		Progress: func(processed int) {
			logger.Info("extraction progress", "processed", processed, "total", total)
			a.reportProgress(trigger.ContainerID, processed, total, logger)
		},
	})
	report := extractor.Run(ctx, root, func(ctx context.Context, ev domain.Evidence) error {
		return a.persist(ctx, trigger, ev, logger)
	})
	a.metrics.observeItemErrors(report.Errors)

	records, err := a.store.ListCaseEvidence(trigger.CaseID)
	if err != nil {
		return stats, fmt.Errorf("load case evidence: %w", err)
	}
	assignments := thread.Resolve(records)
	updated, err := a.store.SetThreadIDs(assignments)
	if err != nil {
		return stats, fmt.Errorf("assign threads: %w", err)
	}
	threads, err := a.store.CountContainerThreads(trigger.ContainerID)
	if err != nil {
		return stats, fmt.Errorf("count threads: %w", err)
	}
	logger.Info("threads resolved", "records", len(records), "assigned", updated, "threads", threads)

	stats = domain.RunStatistics{
		TotalEmails:       report.Emails,
		TotalAttachments:  report.Attachments,
		UniqueAttachments: attachments.Unique(),
		ThreadsIdentified: threads,
		SizeSaved:         report.SizeSaved,
		ProcessingTime:    math.Round(time.Since(start).Seconds()*100) / 100,
		Errors:            report.Errors,
	}
	if stats.Errors == nil {
		stats.Errors = []domain.ItemError{}
	}
	a.metrics.observeAttachments(stats.TotalAttachments, stats.UniqueAttachments)

	_, err = a.store.TransitionContainer(trigger.ContainerID, domain.ContainerReady, map[string]any{
		"status":       string(domain.ContainerReady),
		"processed_at": time.Now().UTC().Format(time.RFC3339),
		"stats":        stats,
		"progress":     map[string]any{"processed": stats.TotalEmails, "total": total},
	})
	if err != nil {
		return stats, fmt.Errorf("mark ready: %w", err)
	}
	logger.Info("container run finished", stats.LogAttrs()...)
	return stats, nil
}

func (a *App) persist(ctx context.Context, trigger queue.Trigger, ev domain.Evidence, logger *slog.Logger) error {
	ev.ID = util.NewID()
	ev.ContainerID = trigger.ContainerID
	ev.CaseID = trigger.CaseID
	ev.CreatedAt = time.Now().UTC()
	if err := a.store.CreateEvidence(ev); err != nil {
		return err
	}
	a.metrics.observeMessage()
	a.publish(ctx, ev, logger)
	return nil
}

// download copies the container object to a temp file. cleanup removes it
// and is safe to call on every path.
func (a *App) download(ctx context.Context, key string) (string, func(), error) {
	tmp, err := os.CreateTemp(a.tempDir, "vericase-*.pst")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := a.objects.Download(ctx, key, tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("download container: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("download container: %w", err)
	}
	return path, cleanup, nil
}

func (a *App) failRun(containerID string, runErr error, logger *slog.Logger) {
	logger.Error("container run failed", "err", runErr)
	_, err := a.store.TransitionContainer(containerID, domain.ContainerFailed, map[string]any{
		"status":    string(domain.ContainerFailed),
		"error":     runErr.Error(),
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("mark failed", "err", err)
	}
}

func (a *App) reportProgress(containerID string, processed, total int, logger *slog.Logger) {
	err := a.store.PatchProcessing(containerID, map[string]any{
		"progress": map[string]any{"processed": processed, "total": total},
	})
	if err != nil {
		logger.Warn("progress update failed", "err", err)
	}
}

// countMessages is advisory; a panicking backend yields zero.
func countMessages(root container.Folder, logger *slog.Logger) (total int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("message precount failed", "panic", r)
			total = 0
		}
	}()
	return container.CountMessages(root)
}

func fillTrigger(t *queue.Trigger, c domain.SourceContainer) {
	if t.StorageKey == "" {
		t.StorageKey = c.StorageKey
	}
	if t.CaseID == "" {
		t.CaseID = c.CaseID
	}
	if t.CompanyID == "" {
		t.CompanyID = c.CompanyID
	}
}
