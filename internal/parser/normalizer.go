// Package parser normalizes raw telegram messages into canonical posts.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/channelkit/telegram-parser/internal/models"
)

// Normalize maps one raw telegram message to a Post.
// Returns false for messages that must not be emitted: service messages
// and messages carrying neither text nor media.
// Media urls are left unresolved; the media resolver fills them in later.
func Normalize(msg tg.MessageClass) (*models.Post, bool) {
	m, ok := msg.(*tg.Message)
	if !ok {
		// MessageService and MessageEmpty
		return nil, false
	}

	media, spoiler := extractMedia(m)
	if m.Message == "" && len(media) == 0 {
		return nil, false
	}

	post := &models.Post{
		MessageID:       int64(m.ID),
		Text:            m.Message,
		Media:           media,
		HasMediaSpoiler: spoiler,
		Entities:        normalizeEntities(m.Entities),
		Reactions:       NormalizeReactions(m),
	}

	if m.Date != 0 {
		date := int64(m.Date)
		post.Date = &date
	}
	if views, ok := m.GetViews(); ok {
		post.Views = uint32(views)
	}
	if forwards, ok := m.GetForwards(); ok {
		post.Forwards = uint32(forwards)
	}

	return post, true
}

// extractMedia picks the primary media item of a message, mirroring the
// one-media-per-message model of the source system. Returns the item list
// (empty or single-element) and the spoiler flag.
func extractMedia(m *tg.Message) ([]models.MediaItem, bool) {
	mediaClass, ok := m.GetMedia()
	if !ok {
		return nil, false
	}

	switch media := mediaClass.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := media.Photo.(*tg.Photo)
		if !ok {
			return nil, false
		}
		item := models.MediaItem{
			Kind:   models.MediaPhoto,
			FileID: fileID("photo", photo.ID, photo.AccessHash),
		}
		item.Width, item.Height = largestPhotoSize(photo.Sizes)
		return []models.MediaItem{item}, media.Spoiler

	case *tg.MessageMediaDocument:
		doc, ok := media.Document.(*tg.Document)
		if !ok {
			return nil, false
		}
		item := classifyDocument(doc)
		return []models.MediaItem{item}, media.Spoiler
	}

	// unsupported media kinds (polls, geo, webpages) carry no file payload
	return nil, false
}

// classifyDocument maps a telegram document to video, audio or plain
// document depending on its attributes.
func classifyDocument(doc *tg.Document) models.MediaItem {
	item := models.MediaItem{
		Kind:   models.MediaDocument,
		FileID: fileID("doc", doc.ID, doc.AccessHash),
	}

	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeVideo:
			item.Kind = models.MediaVideo
			item.Duration = int(a.Duration)
			item.Width = a.W
			item.Height = a.H
		case *tg.DocumentAttributeAudio:
			if item.Kind == models.MediaDocument {
				item.Kind = models.MediaAudio
				item.Duration = a.Duration
			}
		case *tg.DocumentAttributeFilename:
			item.FileName = a.FileName
		}
	}

	return item
}

// largestPhotoSize returns the dimensions of the biggest available size.
func largestPhotoSize(sizes []tg.PhotoSizeClass) (int, int) {
	var w, h int
	for _, s := range sizes {
		switch size := s.(type) {
		case *tg.PhotoSize:
			if size.W*size.H > w*h {
				w, h = size.W, size.H
			}
		case *tg.PhotoSizeProgressive:
			if size.W*size.H > w*h {
				w, h = size.W, size.H
			}
		}
	}
	return w, h
}

// normalizeEntities lower-cases entity kinds and copies offsets verbatim.
// Offsets and lengths are in telegram's units and must not be reinterpreted.
func normalizeEntities(entities []tg.MessageEntityClass) []models.TextEntity {
	out := make([]models.TextEntity, 0, len(entities))
	for _, e := range entities {
		entity := models.TextEntity{
			Kind:   entityKind(e),
			Offset: e.GetOffset(),
			Length: e.GetLength(),
		}
		if textURL, ok := e.(*tg.MessageEntityTextURL); ok {
			entity.URL = textURL.URL
		}
		out = append(out, entity)
	}
	return out
}

// entityKind names an entity the way the source system did.
func entityKind(e tg.MessageEntityClass) string {
	switch e.(type) {
	case *tg.MessageEntityMention:
		return "mention"
	case *tg.MessageEntityHashtag:
		return "hashtag"
	case *tg.MessageEntityCashtag:
		return "cashtag"
	case *tg.MessageEntityBotCommand:
		return "bot_command"
	case *tg.MessageEntityURL:
		return "url"
	case *tg.MessageEntityEmail:
		return "email"
	case *tg.MessageEntityPhone:
		return "phone_number"
	case *tg.MessageEntityBold:
		return "bold"
	case *tg.MessageEntityItalic:
		return "italic"
	case *tg.MessageEntityUnderline:
		return "underline"
	case *tg.MessageEntityStrike:
		return "strikethrough"
	case *tg.MessageEntityCode:
		return "code"
	case *tg.MessageEntityPre:
		return "pre"
	case *tg.MessageEntityTextURL:
		return "text_link"
	case *tg.MessageEntityMentionName:
		return "text_mention"
	case *tg.MessageEntityBlockquote:
		return "blockquote"
	case *tg.MessageEntitySpoiler:
		return "spoiler"
	case *tg.MessageEntityBankCard:
		return "bank_card"
	case *tg.MessageEntityCustomEmoji:
		return "custom_emoji"
	default:
		return strings.ToLower(strings.TrimPrefix(e.TypeName(), "messageEntity"))
	}
}

// NormalizeReactions reduces message reactions to key -> count.
// Custom emoji reactions get a "custom:" prefix so they cannot collide
// with emoji keys.
func NormalizeReactions(m *tg.Message) map[string]int {
	reactions, ok := m.GetReactions()
	if !ok || len(reactions.Results) == 0 {
		return nil
	}

	out := make(map[string]int, len(reactions.Results))
	for _, r := range reactions.Results {
		switch reaction := r.Reaction.(type) {
		case *tg.ReactionEmoji:
			out[reaction.Emoticon] = r.Count
		case *tg.ReactionCustomEmoji:
			out["custom:"+strconv.FormatInt(reaction.DocumentID, 10)] = r.Count
		}
	}
	return out
}

// fileID builds the opaque media reference handed to the file gateway.
func fileID(kind string, id, accessHash int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, id, accessHash)
}
