package bus

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	s1, err := b.Subscribe("renderkit.throttle")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	s2, err := b.Subscribe("renderkit.throttle")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	other, _ := b.Subscribe("renderkit.other")

	if err := b.Publish("renderkit.throttle", []byte("429")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, s := range []Subscription{s1, s2} {
		if msg := receive(t, s); string(msg.Data) != "429" || msg.Subject != "renderkit.throttle" {
			t.Errorf("unexpected message %+v", msg)
		}
	}

	select {
	case msg := <-other.Messages():
		t.Errorf("unexpected delivery on other subject: %+v", msg)
	default:
	}
}

func TestMemoryBus_PayloadIsCopied(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe("s")
	data := []byte("abc")
	_ = b.Publish("s", data)
	data[0] = 'x'

	if msg := receive(t, sub); string(msg.Data) != "abc" {
		t.Errorf("payload mutated: %q", msg.Data)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe("s")
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if err := b.Publish("s", []byte("x")); err != nil {
		t.Errorf("Publish after unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}
}

func TestMemoryBus_DropsWhenFull(t *testing.T) {
	b := NewMemoryBus(Config{BufferSize: 1})
	defer b.Close()

	sub, _ := b.Subscribe("s")
	_ = b.Publish("s", []byte("1"))
	_ = b.Publish("s", []byte("2"))

	if msg := receive(t, sub); string(msg.Data) != "1" {
		t.Errorf("got %q, want first message", msg.Data)
	}
	select {
	case msg := <-sub.Messages():
		t.Errorf("second message should have been dropped, got %q", msg.Data)
	default:
	}
}

func TestMemoryBus_Close(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	sub, _ := b.Subscribe("s")

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("subscriptions should close with the bus")
	}
	if err := b.Publish("s", nil); err != ErrClosed {
		t.Errorf("Publish after Close: got %v", err)
	}
	if _, err := b.Subscribe("s"); err != ErrClosed {
		t.Errorf("Subscribe after Close: got %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Unsubscribe after Close: %v", err)
	}
}

func TestValidateSubject(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	if err := b.Publish("", nil); err != ErrInvalidSubject {
		t.Errorf("got %v, want ErrInvalidSubject", err)
	}
	if _, err := b.Subscribe(""); err != ErrInvalidSubject {
		t.Errorf("got %v, want ErrInvalidSubject", err)
	}
}
