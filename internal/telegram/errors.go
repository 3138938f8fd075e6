package telegram

import (
	"errors"
	"fmt"

	"github.com/gotd/td/tgerr"
)

// sentinel errors translated from telegram rpc failures
var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrChannelForbidden = errors.New("channel is private or inaccessible")
	ErrCodeInvalid      = errors.New("phone code is invalid")
	ErrCodeExpired      = errors.New("phone code has expired")
	ErrPasswordNeeded   = errors.New("two-factor password required")
	ErrPasswordInvalid  = errors.New("two-factor password is invalid")
	ErrNotAuthorized    = errors.New("session is not authorized")
)

// FloodWaitError signals telegram throttling with the mandated pause.
type FloodWaitError struct {
	Seconds int
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram flood wait: retry after %d seconds", e.Seconds)
}

// AsFloodWait extracts a FloodWaitError if err carries a FLOOD_WAIT code.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Seconds: int(d.Seconds())}, true
	}
	return nil, false
}

// isRPC reports whether err carries one of the given rpc error codes.
func isRPC(err error, codes ...string) bool {
	return tgerr.Is(err, codes...)
}

// translateChannelErr maps rpc errors on channel access to sentinel errors.
func translateChannelErr(err error) error {
	switch {
	case err == nil:
		return nil
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return ErrChannelNotFound
	case tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNEL_INVALID"):
		return ErrChannelForbidden
	default:
		return err
	}
}
