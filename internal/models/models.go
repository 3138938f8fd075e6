// Package models defines the wire entities shared between the parser,
// the stats pipeline and the callback payloads.
package models

// MediaKind enumerates supported media attachment kinds.
type MediaKind string

// Media kinds, in extraction priority order.
const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
)

// Post is the canonical representation of one channel message.
type Post struct {
	MessageID int64  `json:"message_id"`
	Date      *int64 `json:"date"` // unix seconds, nil when telegram omits it
	Text      string `json:"text"`
	Views     uint32 `json:"views"`
	Forwards  uint32 `json:"forwards"`

	Media           []MediaItem    `json:"media"`
	HasMediaSpoiler bool           `json:"has_media_spoiler"`
	Entities        []TextEntity   `json:"entities"`
	Reactions       map[string]int `json:"reactions,omitempty"`
}

// MediaItem describes one media attachment of a post.
// URL is resolved best-effort and stays nil when resolution is unavailable.
type MediaItem struct {
	Kind     MediaKind `json:"type"`
	FileID   string    `json:"file_id"`
	Duration int       `json:"duration,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	URL      *string   `json:"url"`
}

// TextEntity is a formatting or link annotation on post text.
// Offset and length are in telegram units and are copied verbatim.
type TextEntity struct {
	Kind   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// MessageStat holds engagement counters for a single message id.
// NotFound is set when the id lookup returned no message; the entry is
// still emitted so every requested id appears exactly once in the output.
type MessageStat struct {
	MessageID int64          `json:"message_id"`
	Views     uint32         `json:"views"`
	Forwards  uint32         `json:"forwards"`
	Reactions map[string]int `json:"reactions"`
	NotFound  bool           `json:"not_found"`
}
