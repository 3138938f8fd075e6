// Package callback builds result envelopes and posts them to the caller.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/channelkit/telegram-parser/internal/logger"
	"github.com/channelkit/telegram-parser/internal/models"
)

// Shape selects which correlation id field the envelope carries.
type Shape string

// Result shapes. Channel-linked callbacks echo channel_site_id,
// project-linked callbacks echo project_id plus the channel username.
const (
	ShapeChannelLinked Shape = "channel"
	ShapeProjectLinked Shape = "project"
)

// Envelope is the callback payload. It is built only from wire-safe types,
// so marshalling cannot fail on ordinary results; the sanitize pass exists
// as a last-resort guard.
type Envelope struct {
	ChannelSiteID   string `json:"channel_site_id,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	ChannelUsername string `json:"channel_username,omitempty"`

	Status     string        `json:"status"`
	Posts      []models.Post `json:"posts"`
	Error      string        `json:"error,omitempty"`
	FinishedAt string        `json:"finished_at"`
}

// Success builds a success envelope for the given result shape.
func Success(shape Shape, correlationID, channelUsername string, posts []models.Post) Envelope {
	env := Envelope{
		Status:     "success",
		Posts:      posts,
		FinishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	applyShape(&env, shape, correlationID, channelUsername)
	return env
}

// Failure builds an error envelope for the given result shape.
// Failures travel on the same transport as successes.
func Failure(shape Shape, correlationID, channelUsername string, cause error) Envelope {
	env := Envelope{
		Status:     "error",
		Posts:      []models.Post{},
		Error:      cause.Error(),
		FinishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	applyShape(&env, shape, correlationID, channelUsername)
	return env
}

// applyShape sets exactly one correlation id field, never both.
func applyShape(env *Envelope, shape Shape, correlationID, channelUsername string) {
	switch shape {
	case ShapeProjectLinked:
		env.ProjectID = correlationID
		env.ChannelUsername = channelUsername
	default:
		env.ChannelSiteID = correlationID
	}
}

// Service performs fire-and-forget callback delivery.
type Service struct {
	client *http.Client
	log    *logger.Logger
}

// NewService creates the delivery service with a bounded request timeout.
func NewService(timeout time.Duration) *Service {
	return &Service{
		client: &http.Client{Timeout: timeout},
		log:    logger.Get(),
	}
}

// Deliver posts the envelope to the callback url, at most once.
// Transport errors and non-2xx responses are logged, never retried: the
// caller treats a missing callback as unknown final state.
func (s *Service) Deliver(ctx context.Context, url string, env Envelope) error {
	body, err := json.Marshal(sanitize(env, s.log))
	if err != nil {
		// sanitize already degraded the envelope, this should be unreachable
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("callback: delivery failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Error().Int("status", resp.StatusCode).Str("url", url).Msg("callback: non-2xx response")
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	s.log.Info().Str("url", url).Str("status", env.Status).Int("posts", len(env.Posts)).Msg("callback: delivered")
	return nil
}

// sanitize guarantees a transmittable envelope. Posts default to an empty
// sequence, and if the payload still fails a serializability check the
// posts are dropped and an explanatory error attached: delivery is never
// blocked by a malformed item.
func sanitize(env Envelope, log *logger.Logger) Envelope {
	if env.Posts == nil {
		env.Posts = []models.Post{}
	}

	if _, err := json.Marshal(env); err != nil {
		log.Warn().Err(err).Msg("callback: envelope not serializable, degrading payload")
		env.Posts = []models.Post{}
		if env.Error != "" {
			env.Error += "; "
		}
		env.Error += "result payload was not serializable and has been dropped"
	}

	return env
}
