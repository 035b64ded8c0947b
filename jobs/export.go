package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/export"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// TableLoader resolves the selected rows of a resource and projects them
// onto the requested columns.
type TableLoader interface {
	ExportTable(ctx context.Context, resource string, columns, ids []string) (export.Table, error)
}

// ExportJob writes grid exports to a directory.
type ExportJob struct {
	Loader  TableLoader
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExportJob wires dependencies for the export handler.
func NewExportJob(loader TableLoader, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportJob {
	return &ExportJob{Loader: loader, Dir: dir, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeGridExport tasks. Malformed payloads are not
// retried; loader and file system failures are.
func (j *ExportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Loader == nil {
		return errors.New("export: handler not configured")
	}
	var payload ExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("export: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	format, err := export.ParseFormat(payload.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskTypeGridExport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("export_id", payload.ID), slog.String("resource", payload.Resource))
	start := time.Now()

	table, err := j.Loader.ExportTable(ctx, payload.Resource, payload.Columns, payload.Rows)
	if err != nil {
		logger.Error("load export rows", slog.Any("error", err))
		return err
	}
	if table.Name == "" {
		table.Name = payload.Resource
	}
	if missing := len(payload.Rows) - len(table.Rows); missing > 0 {
		logger.Warn("selected rows no longer exist", slog.Int("missing", missing))
	}

	path := j.Path(payload.Resource, payload.ID, format)
	if err := writeFile(path, format, table); err != nil {
		logger.Error("write export", slog.Any("error", err))
		return err
	}
	j.metrics().AddExportedRows(payload.Resource, string(format), len(table.Rows))
	logger.Info("completed export", slog.String("path", path), slog.Int("rows", len(table.Rows)), slog.Duration("duration", time.Since(start)))
	return nil
}

// Path returns where the export with id is written.
func (j *ExportJob) Path(resource, id string, format export.Format) string {
	return filepath.Join(j.Dir, fmt.Sprintf("%s-%s.%s", safeName(resource), safeName(id), format.Extension()))
}

func writeFile(path string, format export.Format, table export.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("export: create file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := export.Write(tmp, format, table); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func (j *ExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeGridExport))
	}
	return slog.Default().With(slog.String("job", TaskTypeGridExport))
}

func (j *ExportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
