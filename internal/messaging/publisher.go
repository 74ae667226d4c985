package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/events"
)

// EventPublisher mirrors the synthesis event trail onto NATS so other
// services can observe synthesis activity without polling the database.
type EventPublisher struct {
	conn    *nats.Conn
	url     string
	subject string
	wait    time.Duration
}

// NewEventPublisher creates a publisher from configuration. An empty NATS
// URL disables publishing; the returned publisher then accepts events as
// no-ops.
func NewEventPublisher(cfg config.NATSConfig) *EventPublisher {
	return &EventPublisher{
		url:     cfg.URL,
		subject: cfg.Subject,
		wait:    cfg.ReconnectWait,
	}
}

// Enabled reports whether a NATS URL was configured.
func (p *EventPublisher) Enabled() bool {
	return p.url != ""
}

// Connect establishes the connection to the NATS server
func (p *EventPublisher) Connect() error {
	if !p.Enabled() {
		return nil
	}

	log.Printf("🔌 Connecting to NATS at %s", p.url)

	// Connection options with retry logic
	opts := []nats.Option{
		nats.Name("verba-bridge"),
		nats.ReconnectWait(p.wait),
		nats.MaxReconnects(-1), // Retry indefinitely
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️  NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("🔄 NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(p.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.conn = conn
	log.Printf("✅ Connected to NATS server at %s", conn.ConnectedUrl())
	return nil
}

// Publish sends a synthesis event to the configured subject
func (p *EventPublisher) Publish(event *events.SynthesisEvent) error {
	if !p.Enabled() {
		return nil
	}
	if p.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}

	return nil
}

// Close closes the NATS connection
func (p *EventPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// IsConnected returns true if connected to NATS
func (p *EventPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
