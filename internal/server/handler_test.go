package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelkit/telegram-parser/internal/authsession"
	"github.com/channelkit/telegram-parser/internal/ingest"
	"github.com/channelkit/telegram-parser/internal/models"
	"github.com/channelkit/telegram-parser/internal/syncjob"
	"github.com/channelkit/telegram-parser/internal/telegram"
)

// mockAuthStore implements AuthStore
type mockAuthStore struct {
	codeHash    string
	sendErr     error
	session     string
	verifyErr   error
	passwordErr error
	count       int
	swept       bool
}

func (s *mockAuthStore) SendCode(ctx context.Context, phone string) (string, error) {
	return s.codeHash, s.sendErr
}

func (s *mockAuthStore) VerifyCode(ctx context.Context, phone, codeHash, code string) (string, error) {
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	return s.session, nil
}

func (s *mockAuthStore) VerifyPassword(ctx context.Context, phone, password string) (string, error) {
	if s.passwordErr != nil {
		return "", s.passwordErr
	}
	return s.session, nil
}

func (s *mockAuthStore) SweepExpired() { s.swept = true }
func (s *mockAuthStore) Count() int    { return s.count }

// mockSyncStarter implements SyncStarter
type mockSyncStarter struct {
	opts syncjob.Options
}

func (m *mockSyncStarter) Start(ctx context.Context, opts syncjob.Options) *syncjob.Job {
	m.opts = opts
	return &syncjob.Job{ID: uuid.New(), StartedAt: time.Now(), Options: opts}
}

// mockStatsFetcher implements StatsFetcher
type mockStatsFetcher struct {
	stats []models.MessageStat
	err   error
}

func (m *mockStatsFetcher) FetchStats(ctx context.Context, sessionString, channelUsername string, ids []int64) ([]models.MessageStat, error) {
	return m.stats, m.err
}

func newTestServer(auth *mockAuthStore, sync *mockSyncStarter, stats *mockStatsFetcher) *httptest.Server {
	if auth == nil {
		auth = &mockAuthStore{}
	}
	if sync == nil {
		sync = &mockSyncStarter{}
	}
	if stats == nil {
		stats = &mockStatsFetcher{}
	}
	return httptest.NewServer(NewRouter(NewHandler(auth, sync, stats)))
}

func postJSON(t *testing.T, url string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealth(t *testing.T) {
	auth := &mockAuthStore{count: 3}
	srv := newTestServer(auth, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["active_auth_sessions"])
	assert.True(t, auth.swept, "health probe doubles as the session sweep")
}

func TestSendCode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{codeHash: "hash-1"}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/send-code", map[string]string{"phone_number": "+1555"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "hash-1", body["phone_code_hash"])
	})

	t.Run("missing phone", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/send-code", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "phone_number")
	})

	t.Run("flood wait maps to 429 with retry_after", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{sendErr: &telegram.FloodWaitError{Seconds: 30}}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/send-code", map[string]string{"phone_number": "+1555"})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, float64(30), body["retry_after"])
	})

	t.Run("upstream failure maps to 502", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{sendErr: errors.New("rpc timeout")}, nil, nil)
		defer srv.Close()

		resp, _ := postJSON(t, srv.URL+"/auth/send-code", map[string]string{"phone_number": "+1555"})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestVerifyCode(t *testing.T) {
	payload := map[string]string{
		"phone_number":    "+1555",
		"phone_code_hash": "hash",
		"phone_code":      "12345",
	}

	t.Run("success returns the session string", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{session: "session-string"}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/verify-code", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "session-string", body["session_string"])
	})

	t.Run("2fa needed is a 200 with requires_2fa", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{verifyErr: telegram.ErrPasswordNeeded}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/verify-code", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["requires_2fa"])
	})

	t.Run("invalid code is a 200 protocol failure", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{verifyErr: telegram.ErrCodeInvalid}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/verify-code", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.NotEmpty(t, body["error"])
	})

	t.Run("expired session is a 200 protocol failure", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{verifyErr: authsession.ErrSessionExpired}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/verify-code", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("unexpected error maps to 502", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{verifyErr: errors.New("rpc timeout")}, nil, nil)
		defer srv.Close()

		resp, _ := postJSON(t, srv.URL+"/auth/verify-code", payload)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestVerifyPassword(t *testing.T) {
	payload := map[string]string{"phone_number": "+1555", "password": "hunter2"}

	t.Run("success", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{session: "session-string"}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/verify-2fa", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "session-string", body["session_string"])
	})

	t.Run("wrong password is a 200 protocol failure", func(t *testing.T) {
		srv := newTestServer(&mockAuthStore{passwordErr: telegram.ErrPasswordInvalid}, nil, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/auth/verify-2fa", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})
}

func TestStartSync(t *testing.T) {
	t.Run("acknowledges with a job id", func(t *testing.T) {
		sync := &mockSyncStarter{}
		srv := newTestServer(nil, sync, nil)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/sync", map[string]interface{}{
			"channel_site_id":  "site-1",
			"channel_username": "@durov",
			"session_string":   "session",
			"callback_url":     "http://cms/callback",
			"limit":            50,
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "started", body["status"])
		assert.NotEmpty(t, body["job_id"])

		assert.Equal(t, "durov", sync.opts.ChannelUsername, "handler passes the normalized username")
		assert.Equal(t, 50, sync.opts.Limit)
		assert.Equal(t, "site-1", sync.opts.CorrelationID)
	})

	t.Run("missing correlation id is rejected", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil)
		defer srv.Close()

		resp, _ := postJSON(t, srv.URL+"/sync", map[string]interface{}{
			"channel_username": "durov",
			"session_string":   "session",
			"callback_url":     "http://cms/callback",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid json is rejected", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/sync", "application/json", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetStats(t *testing.T) {
	payload := map[string]interface{}{
		"channel_username": "durov",
		"session_string":   "session",
		"message_ids":      []int64{101, 102},
	}

	t.Run("success", func(t *testing.T) {
		stats := &mockStatsFetcher{stats: []models.MessageStat{
			{MessageID: 101, Views: 10, Reactions: map[string]int{}},
			{MessageID: 102, NotFound: true, Reactions: map[string]int{}},
		}}
		srv := newTestServer(nil, nil, stats)
		defer srv.Close()

		resp, body := postJSON(t, srv.URL+"/stats", payload)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])

		entries := body["stats"].([]interface{})
		require.Len(t, entries, 2)
		assert.Equal(t, true, entries[1].(map[string]interface{})["not_found"])
	})

	t.Run("unknown channel maps to 404", func(t *testing.T) {
		srv := newTestServer(nil, nil, &mockStatsFetcher{err: telegram.ErrChannelNotFound})
		defer srv.Close()

		resp, _ := postJSON(t, srv.URL+"/stats", payload)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("private channel maps to 403", func(t *testing.T) {
		srv := newTestServer(nil, nil, &mockStatsFetcher{err: telegram.ErrChannelForbidden})
		defer srv.Close()

		resp, _ := postJSON(t, srv.URL+"/stats", payload)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("empty ids are rejected before dialing", func(t *testing.T) {
		srv := newTestServer(nil, nil, &mockStatsFetcher{err: ingest.ErrEmptyRequest})
		defer srv.Close()

		resp, _ := postJSON(t, srv.URL+"/stats", map[string]interface{}{
			"channel_username": "durov",
			"session_string":   "session",
			"message_ids":      []int64{},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
