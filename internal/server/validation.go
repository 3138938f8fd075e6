package server

import (
	"errors"
	"strings"

	"github.com/channelkit/telegram-parser/internal/callback"
)

// validation errors
var (
	ErrPhoneRequired       = errors.New("phone_number is required")
	ErrCodeHashRequired    = errors.New("phone_code_hash is required")
	ErrCodeRequired        = errors.New("phone_code is required")
	ErrPasswordRequired    = errors.New("password is required")
	ErrChannelRequired     = errors.New("channel_username is required")
	ErrSessionRequired     = errors.New("session_string is required")
	ErrCallbackRequired    = errors.New("callback_url is required")
	ErrCorrelationRequired = errors.New("either channel_site_id or project_id is required")
	ErrInvalidLimit        = errors.New("limit must be non-negative")
	ErrNoMessageIDs        = errors.New("message_ids must not be empty")
)

// SendCodeRequest asks for a login code to be sent to a phone.
type SendCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// Validate performs basic validation of the request
func (r *SendCodeRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return ErrPhoneRequired
	}
	return nil
}

// VerifyCodeRequest redeems a login code.
type VerifyCodeRequest struct {
	PhoneNumber   string `json:"phone_number"`
	PhoneCodeHash string `json:"phone_code_hash"`
	PhoneCode     string `json:"phone_code"`
}

// Validate performs basic validation of the request
func (r *VerifyCodeRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return ErrPhoneRequired
	}
	if r.PhoneCodeHash == "" {
		return ErrCodeHashRequired
	}
	if r.PhoneCode == "" {
		return ErrCodeRequired
	}
	return nil
}

// VerifyPasswordRequest completes a two-factor login.
type VerifyPasswordRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// Validate performs basic validation of the request
func (r *VerifyPasswordRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return ErrPhoneRequired
	}
	if r.Password == "" {
		return ErrPasswordRequired
	}
	return nil
}

// SyncRequest starts a background channel sync.
// Exactly one correlation id is required: channel_site_id for channel-linked
// results, project_id for project-linked results.
type SyncRequest struct {
	ChannelSiteID   string `json:"channel_site_id,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	ChannelUsername string `json:"channel_username"`
	SessionString   string `json:"session_string"`
	CallbackURL     string `json:"callback_url"`

	// Limit - maximum messages to sync. 0 means the server default.
	Limit int `json:"limit,omitempty"`
}

// Validate performs basic validation of the request
// does not check if channel exists (that requires network call)
func (r *SyncRequest) Validate() error {
	if r.ChannelUsername == "" {
		return ErrChannelRequired
	}
	r.ChannelUsername = strings.TrimPrefix(r.ChannelUsername, "@")

	if r.SessionString == "" {
		return ErrSessionRequired
	}
	if r.CallbackURL == "" {
		return ErrCallbackRequired
	}
	if r.ChannelSiteID == "" && r.ProjectID == "" {
		return ErrCorrelationRequired
	}
	if r.Limit < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Shape returns the result shape and correlation id for the request.
func (r *SyncRequest) Shape() (callback.Shape, string) {
	if r.ProjectID != "" {
		return callback.ShapeProjectLinked, r.ProjectID
	}
	return callback.ShapeChannelLinked, r.ChannelSiteID
}

// StatsRequest fetches engagement stats for specific message ids.
type StatsRequest struct {
	ChannelUsername string  `json:"channel_username"`
	SessionString   string  `json:"session_string"`
	MessageIDs      []int64 `json:"message_ids"`
}

// Validate performs basic validation of the request
func (r *StatsRequest) Validate() error {
	if r.ChannelUsername == "" {
		return ErrChannelRequired
	}
	r.ChannelUsername = strings.TrimPrefix(r.ChannelUsername, "@")

	if r.SessionString == "" {
		return ErrSessionRequired
	}
	if len(r.MessageIDs) == 0 {
		return ErrNoMessageIDs
	}
	return nil
}
