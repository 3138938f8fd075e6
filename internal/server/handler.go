// Package server exposes the auth and sync operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/channelkit/telegram-parser/internal/authsession"
	"github.com/channelkit/telegram-parser/internal/ingest"
	"github.com/channelkit/telegram-parser/internal/models"
	"github.com/channelkit/telegram-parser/internal/syncjob"
	"github.com/channelkit/telegram-parser/internal/telegram"
)

// AuthStore is the auth session manager surface used by the handlers.
type AuthStore interface {
	SendCode(ctx context.Context, phone string) (string, error)
	VerifyCode(ctx context.Context, phone, codeHash, code string) (string, error)
	VerifyPassword(ctx context.Context, phone, password string) (string, error)
	SweepExpired()
	Count() int
}

// SyncStarter launches background sync jobs.
type SyncStarter interface {
	Start(ctx context.Context, opts syncjob.Options) *syncjob.Job
}

// StatsFetcher fetches message stats synchronously.
type StatsFetcher interface {
	FetchStats(ctx context.Context, sessionString, channelUsername string, ids []int64) ([]models.MessageStat, error)
}

// Handler handles HTTP requests for the parser service
type Handler struct {
	auth  AuthStore
	sync  SyncStarter
	stats StatsFetcher
}

// NewHandler creates a new handler
func NewHandler(auth AuthStore, sync SyncStarter, stats StatsFetcher) *Handler {
	return &Handler{
		auth:  auth,
		sync:  sync,
		stats: stats,
	}
}

// Health handles GET /health
// The probe doubles as the opportunistic session sweep.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.auth.SweepExpired()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "ok",
		"service":              "telegram-parser",
		"active_auth_sessions": h.auth.Count(),
		"time":                 time.Now().Format(time.RFC3339),
	})
}

// SendCode handles POST /auth/send-code
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	codeHash, err := h.auth.SendCode(r.Context(), req.PhoneNumber)
	if err != nil {
		var fw *telegram.FloodWaitError
		if errors.As(err, &fw) {
			respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"success":     false,
				"error":       fw.Error(),
				"retry_after": fw.Seconds,
			})
			return
		}
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"phone_code_hash": codeHash,
	})
}

// VerifyCode handles POST /auth/verify-code
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionString, err := h.auth.VerifyCode(r.Context(), req.PhoneNumber, req.PhoneCodeHash, req.PhoneCode)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"session_string": sessionString,
		})

	case errors.Is(err, telegram.ErrPasswordNeeded):
		// not a failure: the login continues at /auth/verify-2fa
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":      false,
			"requires_2fa": true,
		})

	case errors.Is(err, telegram.ErrCodeInvalid),
		errors.Is(err, telegram.ErrCodeExpired),
		errors.Is(err, authsession.ErrSessionExpired):
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})

	default:
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}
}

// VerifyPassword handles POST /auth/verify-2fa
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req VerifyPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionString, err := h.auth.VerifyPassword(r.Context(), req.PhoneNumber, req.Password)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"session_string": sessionString,
		})

	case errors.Is(err, telegram.ErrPasswordInvalid),
		errors.Is(err, authsession.ErrSessionExpired):
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})

	default:
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}
}

// StartSync handles POST /sync
// The sync itself runs as a detached background job; the response only
// acknowledges that it started. Results arrive via the callback url.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	shape, correlationID := req.Shape()
	job := h.sync.Start(r.Context(), syncjob.Options{
		ChannelUsername: req.ChannelUsername,
		SessionString:   req.SessionString,
		CallbackURL:     req.CallbackURL,
		Limit:           req.Limit,
		Shape:           shape,
		CorrelationID:   correlationID,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "started",
		"job_id":  job.ID.String(),
		"message": "sync started for channel " + req.ChannelUsername,
	})
}

// GetStats handles POST /stats (synchronous, not backgrounded)
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var req StatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.stats.FetchStats(r.Context(), req.SessionString, req.ChannelUsername, req.MessageIDs)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"stats":   stats,
		})
	case errors.Is(err, ingest.ErrEmptyRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, telegram.ErrChannelNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, telegram.ErrChannelForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}
}

// helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
