// Package syncjob runs channel sync requests as detached background jobs.
package syncjob

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/channelkit/telegram-parser/internal/callback"
	"github.com/channelkit/telegram-parser/internal/logger"
	"github.com/channelkit/telegram-parser/internal/models"
)

// defaultLimit caps a sync that did not specify its own limit.
const defaultLimit = 1000

// HistoryFetcher is the ingestion pipeline surface used by sync jobs.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, sessionString, channelUsername string, limit int) ([]models.Post, error)
}

// Deliverer posts the result envelope to the caller.
type Deliverer interface {
	Deliver(ctx context.Context, url string, env callback.Envelope) error
}

// EventPublisher publishes sync completion events. Optional.
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event CompletedEvent) error
}

// CompletedEvent describes a finished sync job.
type CompletedEvent struct {
	JobID           uuid.UUID `json:"job_id"`
	ChannelUsername string    `json:"channel_username"`
	Status          string    `json:"status"`
	Posts           int       `json:"posts"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Options describes one sync request.
type Options struct {
	ChannelUsername string
	SessionString   string
	CallbackURL     string
	Limit           int

	Shape         callback.Shape
	CorrelationID string
}

// Job identifies one running sync.
type Job struct {
	ID        uuid.UUID
	StartedAt time.Time
	Options   Options
}

// Manager starts sync jobs and tracks the running set.
// Jobs are independent: any number may run concurrently, and a job always
// runs to completion - there is no cancellation handle.
type Manager struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job

	fetcher   HistoryFetcher
	delivery  Deliverer
	publisher EventPublisher
	log       *logger.Logger
}

// NewManager creates a sync job manager. publisher may be nil.
func NewManager(fetcher HistoryFetcher, delivery Deliverer, publisher EventPublisher) *Manager {
	return &Manager{
		jobs:      make(map[uuid.UUID]*Job),
		fetcher:   fetcher,
		delivery:  delivery,
		publisher: publisher,
		log:       logger.Get(),
	}
}

// Start launches a detached sync job and returns immediately.
//
// The job runs on a background context, NOT the HTTP request context:
// the request context gets canceled when the handler returns, which would
// kill the job right after the "started" response is sent.
func (m *Manager) Start(_ context.Context, opts Options) *Job {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	job := &Job{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Options:   opts,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(context.Background(), job)

	return job
}

// Running returns the number of jobs currently in flight.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// run executes one sync job to completion and reports through the
// callback channel. Success and failure share that one transport.
func (m *Manager) run(ctx context.Context, job *Job) {
	defer func() {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
	}()

	opts := job.Options
	m.log.Info().
		Str("job_id", job.ID.String()).
		Str("channel", opts.ChannelUsername).
		Int("limit", opts.Limit).
		Msg("syncjob: started")

	posts, err := m.fetcher.FetchHistory(ctx, opts.SessionString, opts.ChannelUsername, opts.Limit)

	var env callback.Envelope
	status := "success"
	if err != nil {
		status = "error"
		m.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("syncjob: fetch failed")
		env = callback.Failure(opts.Shape, opts.CorrelationID, opts.ChannelUsername, err)
	} else {
		env = callback.Success(opts.Shape, opts.CorrelationID, opts.ChannelUsername, posts)
	}

	if err := m.delivery.Deliver(ctx, opts.CallbackURL, env); err != nil {
		// at-most-once: the error is logged inside the delivery service
		m.log.Warn().Str("job_id", job.ID.String()).Msg("syncjob: callback not delivered")
	}

	if m.publisher != nil {
		event := CompletedEvent{
			JobID:           job.ID,
			ChannelUsername: opts.ChannelUsername,
			Status:          status,
			Posts:           len(posts),
			FinishedAt:      time.Now(),
		}
		if err := m.publisher.PublishSyncCompleted(ctx, event); err != nil {
			m.log.Warn().Err(err).Msg("syncjob: failed to publish completion event")
		}
	}

	m.log.Info().
		Str("job_id", job.ID.String()).
		Str("status", status).
		Int("posts", len(posts)).
		Msg("syncjob: finished")
}
