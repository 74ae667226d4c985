package messaging

import (
	"testing"
	"time"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/events"
)

func TestPublisher_DisabledWithoutURL(t *testing.T) {
	pub := NewEventPublisher(config.NATSConfig{Subject: "verba.synthesis.events"})

	if pub.Enabled() {
		t.Error("Publisher should be disabled without a URL")
	}
	if err := pub.Connect(); err != nil {
		t.Errorf("Connect on a disabled publisher should be a no-op, got: %v", err)
	}

	ev := events.NewSynthesisEvent(events.SourceBridge, "minimax/speech-02-turbo", "v", 1)
	if err := pub.Publish(ev); err != nil {
		t.Errorf("Publish on a disabled publisher should be a no-op, got: %v", err)
	}
	if pub.IsConnected() {
		t.Error("Disabled publisher must not report a connection")
	}
}

func TestPublisher_PublishWithoutConnect(t *testing.T) {
	pub := NewEventPublisher(config.NATSConfig{
		URL:           "nats://localhost:4222",
		Subject:       "verba.synthesis.events",
		ReconnectWait: 2 * time.Second,
	})

	ev := events.NewSynthesisEvent(events.SourceBridge, "minimax/speech-02-turbo", "v", 1)
	if err := pub.Publish(ev); err == nil {
		t.Error("Publish before Connect should fail on an enabled publisher")
	}
}
