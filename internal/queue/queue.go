// Package queue connects the admission path to the alignment workers over
// NATS JetStream. Admission and processing are decoupled by the durable
// stream; the publish is not transactional with job creation.
package queue

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/internal/config"
	"github.com/alignlab/alignd/pkg/model"
)

// JobMessage is the wire format of one queued alignment job.
type JobMessage struct {
	JobID model.JobID `json:"job_id"`
}

// Connect establishes the NATS connection and ensures the alignment stream exists.
func Connect(cfg config.QueueConfig) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "connecting to NATS at %s", cfg.URL)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, errors.Wrap(err, "obtaining JetStream context")
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, nil, errors.Wrapf(err, "ensuring stream %s", cfg.Stream)
	}
	return nc, js, nil
}

// Publisher enqueues alignment jobs for asynchronous processing.
type Publisher struct {
	js      nats.JetStreamContext
	subject string
}

// NewPublisher creates a publisher on the given JetStream context.
func NewPublisher(js nats.JetStreamContext, subject string) *Publisher {
	return &Publisher{js: js, subject: subject}
}

// PublishJob enqueues the job with the given ID.
func (p *Publisher) PublishJob(id model.JobID) error {
	payload, err := json.Marshal(JobMessage{JobID: id})
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(p.subject, payload); err != nil {
		return errors.Wrapf(err, "publishing job %d", id)
	}
	log.WithField("job_id", id).Debug("enqueued alignment job")
	return nil
}
