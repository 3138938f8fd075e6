// Package telegram provides Telegram MTProto client wrapper.
package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"github.com/channelkit/telegram-parser/internal/logger"
)

// Client wraps a connected gotd client and provides high-level operations.
// The underlying connection runs in a background goroutine until Close.
type Client struct {
	tg      *telegram.Client
	storage *session.StorageMemory

	rateLimiter *RateLimiter
	log         *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// Dial connects a new client handle. The session string, when present, is the
// credential exported by a previous auth flow; an empty string yields a fresh
// unauthenticated handle suitable for sending a login code.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	storage := &session.StorageMemory{}
	if opts.SessionString != "" {
		raw, err := base64.StdEncoding.DecodeString(opts.SessionString)
		if err != nil {
			return nil, fmt.Errorf("decode session string: %w", err)
		}
		if err := storage.StoreSession(ctx, raw); err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	rps := opts.RPS
	if rps <= 0 {
		rps = 2.0
	}

	c := &Client{
		tg:          telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{SessionStorage: storage}),
		storage:     storage,
		rateLimiter: NewRateLimiter(rps, 1),
		log:         logger.Get(),
		done:        make(chan struct{}),
	}

	// the connection is detached from the caller's context: handles outlive
	// the request that created them (auth sessions, background sync jobs)
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	ready := make(chan struct{})
	go func() {
		defer close(c.done)
		c.runErr = c.tg.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
	case <-c.done:
		cancel()
		return nil, fmt.Errorf("telegram connect: %w", c.runErr)
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}

	c.log.Debug().Bool("with_session", opts.SessionString != "").Msg("telegram: client connected")
	return c, nil
}

// Close stops the background connection. Safe to call more than once.
func (c *Client) Close() {
	c.cancel()
	<-c.done
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() *tg.Client {
	return c.tg.API()
}

// SendCode requests a login code for the phone number.
// Returns the code hash needed to redeem the code.
func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	sent, err := c.tg.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		if fw, ok := AsFloodWait(err); ok {
			c.rateLimiter.SetFloodWait(fw.Seconds)
			return "", fw
		}
		return "", fmt.Errorf("send code: %w", err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("unexpected sent code type %T", sent)
	}
	return code.PhoneCodeHash, nil
}

// SignIn redeems a login code.
// Returns ErrPasswordNeeded when the account has 2FA enabled,
// ErrCodeInvalid or ErrCodeExpired on bad codes.
func (c *Client) SignIn(ctx context.Context, phone, codeHash, code string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.tg.Auth().SignIn(ctx, phone, code, codeHash)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return ErrPasswordNeeded
	case isRPC(err, "PHONE_CODE_INVALID"):
		return ErrCodeInvalid
	case isRPC(err, "PHONE_CODE_EXPIRED"):
		return ErrCodeExpired
	default:
		return fmt.Errorf("sign in: %w", err)
	}
}

// CheckPassword completes a 2FA login.
func (c *Client) CheckPassword(ctx context.Context, password string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.tg.Auth().Password(ctx, password)
	switch {
	case err == nil:
		return nil
	case isRPC(err, "PASSWORD_HASH_INVALID"):
		return ErrPasswordInvalid
	default:
		return fmt.Errorf("check password: %w", err)
	}
}

// ExportSession serializes the current session into an opaque credential
// string usable with Dial.
func (c *Client) ExportSession(ctx context.Context) (string, error) {
	raw, err := c.storage.LoadSession(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", ErrNotAuthorized
		}
		return "", fmt.Errorf("export session: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ResolveChannel resolves channel username to Channel info.
// Username can be with or without @ prefix.
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = strings.TrimPrefix(username, "@")

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.log.Debug().Str("username", username).Msg("telegram: resolving channel username")
	resolved, err := c.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		if fw, ok := AsFloodWait(err); ok {
			c.log.Warn().Int("wait_seconds", fw.Seconds).Msg("telegram: FLOOD_WAIT on resolve")
			c.rateLimiter.SetFloodWait(fw.Seconds)
		}
		return nil, translateChannelErr(err)
	}

	if len(resolved.Chats) == 0 {
		return nil, ErrChannelNotFound
	}

	ch, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, ErrChannelNotFound
	}

	return &Channel{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   username,
		Title:      ch.Title,
	}, nil
}

// GetHistory fetches one page of channel history.
// offsetID: start below this message id (0 = newest messages)
// limit: max number of messages to fetch (capped at 100 by telegram)
// Messages come in telegram's native reverse-chronological order.
func (c *Client) GetHistory(ctx context.Context, channel *Channel, offsetID int, limit int) ([]tg.MessageClass, error) {
	if limit > 100 {
		limit = 100 // telegram api limit
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.log.Debug().Int64("channel_id", channel.ID).Int("offset_id", offsetID).Int("limit", limit).Msg("telegram: fetching history page")
	history, err := c.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer: &tg.InputPeerChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
		OffsetID: offsetID,
		Limit:    limit,
	})
	if err != nil {
		if fw, ok := AsFloodWait(err); ok {
			c.log.Warn().Int("wait_seconds", fw.Seconds).Msg("telegram: FLOOD_WAIT on history")
			c.rateLimiter.SetFloodWait(fw.Seconds)
		}
		return nil, translateChannelErr(err)
	}

	return extractMessages(history), nil
}

// GetMessagesByIDs fetches specific messages by their ids.
// At most 100 ids per call (telegram batch limit); callers batch above that.
// Missing ids are simply absent from the result.
func (c *Client) GetMessagesByIDs(ctx context.Context, channel *Channel, ids []int64) ([]tg.MessageClass, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		},
	}
	for _, id := range ids {
		req.ID = append(req.ID, &tg.InputMessageID{ID: int(id)})
	}

	result, err := c.API().ChannelsGetMessages(ctx, req)
	if err != nil {
		if fw, ok := AsFloodWait(err); ok {
			c.rateLimiter.SetFloodWait(fw.Seconds)
		}
		return nil, translateChannelErr(err)
	}

	return extractMessages(result), nil
}

// extractMessages unwraps the messages container classes.
// Service and empty messages are kept: filtering is the normalizer's job.
func extractMessages(messagesClass tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := messagesClass.(type) {
	case *tg.MessagesChannelMessages:
		return h.Messages
	case *tg.MessagesMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	default:
		return nil
	}
}
