package bus

import (
	"os"
	"testing"
)

// natsURL returns the server to test against, skipping when none is set.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("RENDERKIT_TEST_NATS_URL")
	if url == "" {
		t.Skip("RENDERKIT_TEST_NATS_URL not set")
	}
	return url
}

func TestNATSBus_PublishSubscribe(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = natsURL(t)
	cfg.Name = "renderkit-test"

	b, err := NewNATSBus(cfg)
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	defer b.Close()

	sub, err := b.Subscribe("renderkit.test.throttle")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Conn().Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Publish("renderkit.test.throttle", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if msg := receive(t, sub); string(msg.Data) != "hello" {
		t.Errorf("got %q", msg.Data)
	}
}

func TestNATSBus_InvalidSubject(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = natsURL(t)

	b, err := NewNATSBus(cfg)
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	defer b.Close()

	if err := b.Publish("", nil); err != ErrInvalidSubject {
		t.Errorf("got %v, want ErrInvalidSubject", err)
	}
}
