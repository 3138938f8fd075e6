// Package media resolves opaque file references to download urls.
package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/channelkit/telegram-parser/internal/logger"
)

// Resolver asks the file gateway for a downloadable url.
// Resolution is always best-effort: any failure yields nil and the
// surrounding ingestion proceeds with an unresolved url.
type Resolver struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewResolver creates a resolver for the given gateway base url.
// An empty base url disables resolution entirely.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     logger.Get(),
	}
}

// Resolve returns a download url for the file reference, or nil when the
// gateway is disabled or resolution fails.
func (r *Resolver) Resolve(ctx context.Context, fileID string) *string {
	if r.baseURL == "" || fileID == "" {
		return nil
	}

	endpoint := r.baseURL + "/files/resolve?ref=" + url.QueryEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug().Err(err).Str("file_id", fileID).Msg("media: resolve request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Debug().Int("status", resp.StatusCode).Str("file_id", fileID).Msg("media: gateway returned non-ok")
		return nil
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.URL == "" {
		return nil
	}

	return &body.URL
}
