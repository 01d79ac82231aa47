package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/videohub/backend/internal/analytics"
	"github.com/videohub/backend/pkg/queue"
)

// Worker consumes video event jobs from the queue and persists them
// as player log rows for analytics.
type Worker struct {
	queue  *queue.Queue
	repo   *analytics.Repository
	logger *zap.Logger
}

// New creates a worker.
func New(q *queue.Queue, repo *analytics.Repository, logger *zap.Logger) *Worker {
	return &Worker{queue: q, repo: repo, logger: logger}
}

// Run blocks consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.String("queue", queue.QueueVideoEvents))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	switch job.Type {
	case queue.JobTypeVideoEvent:
		if err := w.handleVideoEvent(ctx, job.Payload); err != nil {
			w.logger.Error("video event job failed",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempt),
				zap.Error(err))
			if rerr := w.queue.Retry(ctx, job); rerr != nil {
				w.logger.Error("retry failed", zap.String("job_id", job.ID), zap.Error(rerr))
			}
			return
		}
		w.logger.Debug("video event job done", zap.String("job_id", job.ID))
	default:
		w.logger.Warn("unknown job type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	}
}

func (w *Worker) handleVideoEvent(ctx context.Context, raw json.RawMessage) error {
	var p queue.VideoEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// Malformed payload will never succeed; log and drop.
		w.logger.Warn("malformed video event payload", zap.Error(err))
		return nil
	}
	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return w.repo.InsertPlayerLog(dbCtx, p.SessionID, p.CameraID, p.UserID, p.Username, p.Action, p.Duration, p.At)
}
