package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/storage"
)

// Recorder wraps a RemoteExecutor, logging every command and keeping an
// execution record of it. History failures are logged, never returned.
type Recorder struct {
	logger  *zap.Logger
	next    RemoteExecutor
	history storage.ExecutionHistory
	running sync.Map
}

// NewRecorder creates a recorder around next. history may be nil.
func NewRecorder(next RemoteExecutor, history storage.ExecutionHistory, logger *zap.Logger) *Recorder {
	return &Recorder{
		logger:  logger.Named("recorder"),
		next:    next,
		history: history,
	}
}

// Run implements RemoteExecutor
func (r *Recorder) Run(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
	record := &model.ExecutionRecord{
		ID:        uuid.New().String(),
		Node:      node.Address(),
		Command:   cmd.String(),
		Status:    model.ExecutionStatusRunning,
		StartedAt: time.Now(),
	}

	if r.history != nil {
		if err := r.history.Store(ctx, record); err != nil {
			r.logger.Error("Failed to store execution record",
				zap.String("node", record.Node),
				zap.Error(err))
		}
	}

	r.running.Store(record.ID, *record)
	defer r.running.Delete(record.ID)

	output, err := r.next.Run(ctx, node, cmd)

	completedAt := time.Now()
	record.CompletedAt = &completedAt
	record.Duration = completedAt.Sub(record.StartedAt)
	record.Output = output

	if err != nil {
		record.Status = model.ExecutionStatusFailed
		record.Error = err.Error()
		r.logger.Warn("Remote command failed",
			zap.String("node", node.String()),
			zap.String("command", record.Command),
			zap.Duration("duration", record.Duration),
			zap.Error(err))
	} else {
		record.Status = model.ExecutionStatusSucceeded
		r.logger.Info("Remote command completed",
			zap.String("node", node.String()),
			zap.String("command", record.Command),
			zap.Duration("duration", record.Duration))
	}

	if r.history != nil {
		// The caller's context may already be cancelled; keep the record.
		if err := r.history.Update(context.WithoutCancel(ctx), record); err != nil {
			r.logger.Error("Failed to update execution record",
				zap.String("id", record.ID),
				zap.Error(err))
		}
	}

	return output, err
}

// Running returns the commands currently in flight
func (r *Recorder) Running() []model.ExecutionRecord {
	var records []model.ExecutionRecord
	r.running.Range(func(key, value any) bool {
		if record, ok := value.(model.ExecutionRecord); ok {
			records = append(records, record)
		}
		return true
	})
	return records
}
