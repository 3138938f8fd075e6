// Package ingest orchestrates channel history and stats fetching.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/channelkit/telegram-parser/internal/logger"
	"github.com/channelkit/telegram-parser/internal/models"
	"github.com/channelkit/telegram-parser/internal/parser"
	"github.com/channelkit/telegram-parser/internal/telegram"
)

// statsBatchSize is the telegram per-request id limit.
const statsBatchSize = 100

// ErrEmptyRequest is returned when a stats request carries no message ids.
var ErrEmptyRequest = errors.New("message_ids must not be empty")

// ChannelConn is the slice of the telegram client used by the pipeline.
type ChannelConn interface {
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
	GetHistory(ctx context.Context, channel *telegram.Channel, offsetID int, limit int) ([]tg.MessageClass, error)
	GetMessagesByIDs(ctx context.Context, channel *telegram.Channel, ids []int64) ([]tg.MessageClass, error)
	Close()
}

// Dialer opens an authorized telegram connection from an exported credential.
type Dialer func(ctx context.Context, sessionString string) (ChannelConn, error)

// URLResolver resolves media file references to download urls, best-effort.
type URLResolver interface {
	Resolve(ctx context.Context, fileID string) *string
}

// Service fetches and normalizes channel data.
type Service struct {
	dial     Dialer
	resolver URLResolver
	log      *logger.Logger
}

// NewService creates the ingestion service.
func NewService(dial Dialer, resolver URLResolver) *Service {
	return &Service{
		dial:     dial,
		resolver: resolver,
		log:      logger.Get(),
	}
}

// FetchHistory streams up to limit messages of channel history and
// normalizes them into posts. Output keeps telegram's native
// reverse-chronological delivery order; no re-sorting is done.
// Service messages and empty messages are discarded by the normalizer.
func (s *Service) FetchHistory(ctx context.Context, sessionString, channelUsername string, limit int) ([]models.Post, error) {
	conn, err := s.dial(ctx, sessionString)
	if err != nil {
		return nil, fmt.Errorf("dial telegram: %w", err)
	}
	defer conn.Close()

	channel, err := conn.ResolveChannel(ctx, channelUsername)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("channel", channel.Username).
		Int64("channel_id", channel.ID).
		Int("limit", limit).
		Msg("ingest: starting history fetch")

	// pre-allocate at most one page; limit is caller-supplied and may be huge
	alloc := limit
	if alloc > 100 {
		alloc = 100
	}
	posts := make([]models.Post, 0, alloc)
	fetched := 0
	offsetID := 0

	for fetched < limit {
		batch := limit - fetched
		if batch > 100 {
			batch = 100
		}

		page, err := conn.GetHistory(ctx, channel, offsetID, batch)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, raw := range page {
			fetched++
			post, ok := parser.Normalize(raw)
			if !ok {
				continue
			}
			s.resolveMedia(ctx, post)
			posts = append(posts, *post)
		}

		offsetID = page[len(page)-1].GetID()

		// short page means we reached the beginning of the channel
		if len(page) < batch {
			break
		}
	}

	s.log.Info().
		Str("channel", channel.Username).
		Int("fetched", fetched).
		Int("posts", len(posts)).
		Msg("ingest: history fetch completed")

	return posts, nil
}

// FetchStats returns engagement counters for the requested message ids.
// Ids are looked up in batches of 100; results are keyed by message id, so
// every requested id appears exactly once in the output in input order,
// with not_found set for ids telegram could not resolve.
func (s *Service) FetchStats(ctx context.Context, sessionString, channelUsername string, ids []int64) ([]models.MessageStat, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyRequest
	}

	conn, err := s.dial(ctx, sessionString)
	if err != nil {
		return nil, fmt.Errorf("dial telegram: %w", err)
	}
	defer conn.Close()

	channel, err := conn.ResolveChannel(ctx, channelUsername)
	if err != nil {
		return nil, err
	}

	stats := make([]models.MessageStat, 0, len(ids))

	for start := 0; start < len(ids); start += statsBatchSize {
		end := start + statsBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		raw, err := conn.GetMessagesByIDs(ctx, channel, batch)
		if err != nil {
			return nil, err
		}

		// key the lookup by message id: telegram may return entries
		// reordered or missing, positional matching would mis-attribute
		found := make(map[int64]*tg.Message, len(raw))
		for _, msg := range raw {
			if m, ok := msg.(*tg.Message); ok {
				found[int64(m.ID)] = m
			}
		}

		for _, id := range batch {
			stats = append(stats, statFor(id, found[id]))
		}
	}

	return stats, nil
}

// statFor builds one stat entry; a nil message yields a not_found placeholder.
func statFor(id int64, m *tg.Message) models.MessageStat {
	stat := models.MessageStat{
		MessageID: id,
		Reactions: map[string]int{},
	}
	if m == nil {
		stat.NotFound = true
		return stat
	}

	if views, ok := m.GetViews(); ok {
		stat.Views = uint32(views)
	}
	if forwards, ok := m.GetForwards(); ok {
		stat.Forwards = uint32(forwards)
	}
	if reactions := parser.NormalizeReactions(m); reactions != nil {
		stat.Reactions = reactions
	}
	return stat
}

// resolveMedia fills in download urls for the post's media, best-effort.
func (s *Service) resolveMedia(ctx context.Context, post *models.Post) {
	if s.resolver == nil {
		return
	}
	for i := range post.Media {
		post.Media[i].URL = s.resolver.Resolve(ctx, post.Media[i].FileID)
	}
}
