// Package authsession owns the interactive login state machine.
//
// One session exists per phone number while a login is in flight. Sessions
// live in memory only, expire after a fixed TTL and are swept lazily before
// every operation, so no background timer is needed.
package authsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/channelkit/telegram-parser/internal/logger"
	"github.com/channelkit/telegram-parser/internal/telegram"
)

// ErrSessionExpired is returned when no live session exists for a phone.
var ErrSessionExpired = errors.New("auth session expired or not found")

// Conn is the slice of the telegram client used by the login flow.
type Conn interface {
	SendCode(ctx context.Context, phone string) (string, error)
	SignIn(ctx context.Context, phone, codeHash, code string) error
	CheckPassword(ctx context.Context, password string) error
	ExportSession(ctx context.Context) (string, error)
	Close()
}

// Dialer creates a fresh unauthenticated telegram connection.
type Dialer func(ctx context.Context) (Conn, error)

// Session tracks one in-flight login attempt.
type Session struct {
	Phone       string
	CodeHash    string
	Requires2FA bool
	CreatedAt   time.Time
	ExpiresAt   time.Time

	conn Conn
}

// Store is the concurrent-safe phone -> session map.
// All read-check-then-write sequences happen under one mutex; remote calls
// are made outside it so a slow login cannot block the sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	dial Dialer
	ttl  time.Duration
	log  *logger.Logger
	now  func() time.Time
}

// NewStore creates a session store. Sessions expire ttl after creation.
func NewStore(dial Dialer, ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		dial:     dial,
		ttl:      ttl,
		log:      logger.Get(),
		now:      time.Now,
	}
}

// SendCode starts a login for the phone number: dials a fresh connection,
// requests a code and stores the session. A prior session for the same
// phone is evicted and replaced.
// Returns the code hash required to redeem the code.
func (s *Store) SendCode(ctx context.Context, phone string) (string, error) {
	s.SweepExpired()
	s.evict(phone)

	conn, err := s.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("dial telegram: %w", err)
	}

	codeHash, err := conn.SendCode(ctx, phone)
	if err != nil {
		conn.Close()
		if fw, ok := telegram.AsFloodWait(err); ok {
			return "", fw
		}
		return "", fmt.Errorf("send code: %w", err)
	}

	now := s.now()
	session := &Session{
		Phone:     phone,
		CodeHash:  codeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		conn:      conn,
	}

	s.mu.Lock()
	// a concurrent SendCode for the same phone may have raced us in
	if old, ok := s.sessions[phone]; ok {
		defer old.conn.Close()
	}
	s.sessions[phone] = session
	s.mu.Unlock()

	s.log.Info().Str("phone", phone).Time("expires_at", session.ExpiresAt).Msg("authsession: code sent")
	return codeHash, nil
}

// VerifyCode redeems a login code against the live session for the phone.
//
// On success the session credential is exported, the session is destroyed
// and the credential returned. telegram.ErrPasswordNeeded keeps the session
// alive with Requires2FA set; telegram.ErrCodeInvalid keeps it alive for a
// retry; telegram.ErrCodeExpired destroys it.
func (s *Store) VerifyCode(ctx context.Context, phone, codeHash, code string) (string, error) {
	s.SweepExpired()

	session, err := s.live(phone)
	if err != nil {
		return "", err
	}

	err = session.conn.SignIn(ctx, phone, codeHash, code)
	switch {
	case err == nil:
		return s.finish(ctx, session)

	case errors.Is(err, telegram.ErrPasswordNeeded):
		s.mu.Lock()
		session.Requires2FA = true
		s.mu.Unlock()
		return "", telegram.ErrPasswordNeeded

	case errors.Is(err, telegram.ErrCodeInvalid):
		// caller may retry with a corrected code
		return "", telegram.ErrCodeInvalid

	case errors.Is(err, telegram.ErrCodeExpired):
		s.evictExact(session)
		return "", telegram.ErrCodeExpired

	default:
		return "", fmt.Errorf("sign in: %w", err)
	}
}

// VerifyPassword completes a two-factor login for the phone.
// telegram.ErrPasswordInvalid keeps the session alive for a retry.
func (s *Store) VerifyPassword(ctx context.Context, phone, password string) (string, error) {
	s.SweepExpired()

	session, err := s.live(phone)
	if err != nil {
		return "", err
	}

	err = session.conn.CheckPassword(ctx, password)
	switch {
	case err == nil:
		return s.finish(ctx, session)
	case errors.Is(err, telegram.ErrPasswordInvalid):
		return "", telegram.ErrPasswordInvalid
	default:
		return "", fmt.Errorf("check password: %w", err)
	}
}

// SweepExpired removes every session past its deadline and releases its
// connection best-effort. Invoked before each operation and by the health
// probe.
func (s *Store) SweepExpired() {
	now := s.now()

	s.mu.Lock()
	var expired []*Session
	for phone, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			expired = append(expired, session)
			delete(s.sessions, phone)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		s.log.Info().Str("phone", session.Phone).Msg("authsession: sweeping expired session")
		session.conn.Close()
	}
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// live returns the non-expired session for the phone.
func (s *Store) live(phone string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[phone]
	if !ok || !s.now().Before(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// finish exports the durable credential and destroys the session.
func (s *Store) finish(ctx context.Context, session *Session) (string, error) {
	credential, err := session.conn.ExportSession(ctx)
	if err != nil {
		return "", fmt.Errorf("export session: %w", err)
	}

	s.evictExact(session)
	s.log.Info().Str("phone", session.Phone).Msg("authsession: login complete")
	return credential, nil
}

// evict removes the session for the phone (if any) and closes its handle.
func (s *Store) evict(phone string) {
	s.mu.Lock()
	session, ok := s.sessions[phone]
	if ok {
		delete(s.sessions, phone)
	}
	s.mu.Unlock()

	if ok {
		session.conn.Close()
	}
}

// evictExact removes the given session only if it is still the stored entry
// for its phone. A concurrent SendCode may have replaced it; the replacement
// must survive. The session's own handle is closed either way.
func (s *Store) evictExact(session *Session) {
	s.mu.Lock()
	if current, ok := s.sessions[session.Phone]; ok && current == session {
		delete(s.sessions, session.Phone)
	}
	s.mu.Unlock()

	session.conn.Close()
}
