// Package worker consumes queued alignment jobs and drives them through
// their lifecycle: pending jobs are marked processing, run through the
// alignment engine under the configured time limits, and finished as
// completed or failed.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/alignlab/alignd/internal/alignment"
	"github.com/alignlab/alignd/internal/config"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/internal/queue"
	"github.com/alignlab/alignd/pkg/model"
)

// Engine runs the actual forced alignment for one job and returns the
// storage key of the produced result.
type Engine interface {
	Align(ctx context.Context, job *model.AlignmentJob) (resultPath string, err error)
}

// Worker processes alignment jobs from the queue.
type Worker struct {
	cfg    config.WorkerConfig
	store  alignment.Store
	engine Engine
}

// New creates a worker.
func New(cfg config.WorkerConfig, store alignment.Store, engine Engine) *Worker {
	return &Worker{cfg: cfg, store: store, engine: engine}
}

// Run subscribes to the job stream and processes messages until ctx is
// canceled. Messages are acked manually once the job has reached a terminal
// state; redeliveries of already-terminal jobs are acked and skipped.
func (w *Worker) Run(ctx context.Context, js nats.JetStreamContext, cfg config.QueueConfig) error {
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.Durable, func(msg *nats.Msg) {
		w.handle(ctx, msg)
	},
		nats.Durable(cfg.Durable),
		nats.ManualAck(),
		nats.AckWait(w.cfg.HardTimeLimit+5*time.Minute),
		nats.MaxAckPending(1),
	)
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", cfg.Subject)
	}
	defer func() {
		if err := sub.Drain(); err != nil {
			log.WithError(err).Warn("failed to drain job subscription")
		}
	}()

	log.WithField("subject", cfg.Subject).Info("alignment worker started")
	<-ctx.Done()
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	var jm queue.JobMessage
	if err := json.Unmarshal(msg.Data, &jm); err != nil {
		log.WithError(err).Error("discarding malformed job message")
		w.ack(msg)
		return
	}

	if err := w.Process(ctx, jm.JobID); err != nil {
		log.WithError(err).WithField("job_id", jm.JobID).Error("failed to process job")
	}
	w.ack(msg)
}

func (*Worker) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		log.WithError(err).Warn("failed to ack job message")
	}
}

// Process runs a single job to a terminal state. Jobs that no longer exist
// or are already terminal are skipped.
func (w *Worker) Process(ctx context.Context, id model.JobID) error {
	job, err := w.store.JobByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.WithField("job_id", id).Warn("queued job no longer exists, skipping")
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		log.WithFields(log.Fields{"job_id": id, "status": job.Status}).
			Info("job already finished, skipping redelivery")
		return nil
	}

	job.Status = model.JobProcessing
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	fields := log.Fields{"job_id": job.ID, "user_id": job.OwnerID}
	log.WithFields(fields).Info("processing alignment job")

	resultPath, err := w.alignWithRetry(ctx, job)
	if err != nil {
		job.Status = model.JobFailed
		job.ErrorMessage = null.StringFrom(err.Error())
		log.WithFields(fields).WithError(err).Warn("alignment job failed")
	} else {
		job.Status = model.JobCompleted
		job.ResultPath = null.StringFrom(resultPath)
		job.ErrorMessage = null.String{}
		log.WithFields(fields).Info("alignment job completed")
	}
	return w.store.UpdateJob(ctx, job)
}

// alignWithRetry runs the engine under the soft time limit, inside a hard
// limit covering all attempts, retrying failures a bounded number of times
// with a constant backoff.
func (w *Worker) alignWithRetry(ctx context.Context, job *model.AlignmentJob) (string, error) {
	hardCtx, cancel := context.WithTimeout(ctx, w.cfg.HardTimeLimit)
	defer cancel()

	var resultPath string
	operation := func() error {
		attemptCtx, cancelAttempt := context.WithTimeout(hardCtx, w.cfg.SoftTimeLimit)
		defer cancelAttempt()

		var err error
		resultPath, err = w.engine.Align(attemptCtx, job)
		if hardCtx.Err() != nil {
			return backoff.Permanent(errors.Errorf(
				"job exceeded the %s time limit", w.cfg.HardTimeLimit))
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(w.cfg.RetryBackoff), w.cfg.MaxRetries),
		hardCtx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return resultPath, nil
}
