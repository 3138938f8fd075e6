// Package publisher emits sync events to NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/channelkit/telegram-parser/internal/syncjob"
)

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements syncjob.EventPublisher
type NATSPublisher struct {
	conn NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// PublishSyncCompleted publishes a sync completion event
func (p *NATSPublisher) PublishSyncCompleted(ctx context.Context, event syncjob.CompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish("sync.completed", data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}
