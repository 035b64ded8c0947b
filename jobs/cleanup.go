package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

// TaskTypeExportCleanup removes export files past their retention.
const TaskTypeExportCleanup = "grid:export_cleanup"

// ExportCleanupPayload carries the retention in seconds.
type ExportCleanupPayload struct {
	MaxAgeSeconds int64 `json:"max_age_seconds" validate:"gt=0"`
}

// NewExportCleanupTask builds the periodic cleanup task.
func NewExportCleanupTask(maxAge time.Duration) (*asynq.Task, error) {
	payload := ExportCleanupPayload{MaxAgeSeconds: int64(maxAge / time.Second)}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeExportCleanup, data, asynq.MaxRetry(1), asynq.Queue(QueueDefault)), nil
}

// CleanupJob deletes files in Dir older than the task's retention.
type CleanupJob struct {
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCleanupJob wires the cleanup handler.
func NewCleanupJob(dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	return &CleanupJob{Dir: dir, Logger: logger, Metrics: metrics}
}

// WithClock overrides the time source.
func (j *CleanupJob) WithClock(clock func() time.Time) {
	j.clock = clock
}

// Handle processes TaskTypeExportCleanup tasks. A missing directory is not
// an error.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload ExportCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v: %w", ErrInvalidPayload, err, asynq.SkipRetry)
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskTypeExportCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cleanup: read dir: %w", err)
	}
	cutoff := j.now().Add(-time.Duration(payload.MaxAgeSeconds) * time.Second)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.Dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	j.logger().Info("export cleanup", slog.Int("removed", removed), slog.Time("cutoff", cutoff))
	return errors.Join(errs...)
}

func (j *CleanupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

func (j *CleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeExportCleanup))
	}
	return slog.Default().With(slog.String("job", TaskTypeExportCleanup))
}
