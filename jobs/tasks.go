package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeGridExport is the task type for exporting selected grid rows.
	TaskTypeGridExport = "grid:export"
)

// ErrInvalidPayload is returned for export payloads that fail validation.
var ErrInvalidPayload = errors.New("jobs: invalid export payload")

var validate = validator.New()

// ExportPayload describes one export: the visible columns and selected row
// ids of a grid, plus the output format.
type ExportPayload struct {
	ID       string   `json:"id" validate:"required,uuid"`
	Resource string   `json:"resource" validate:"required"`
	Columns  []string `json:"columns" validate:"required,min=1,dive,required"`
	Rows     []string `json:"rows" validate:"required,min=1,dive,required"`
	Format   string   `json:"format" validate:"oneof=csv xlsx"`
}

// Validate checks the payload shape.
func (p ExportPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// NewExportTask constructs an Asynq task. A missing ID is generated; the ID
// doubles as the task ID so a double submit is rejected by the queue.
func NewExportTask(payload ExportPayload) (*asynq.Task, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.Format == "" {
		payload.Format = "csv"
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGridExport, data, asynq.TaskID(payload.ID), asynq.MaxRetry(3), asynq.Queue(QueueDefault)), nil
}
