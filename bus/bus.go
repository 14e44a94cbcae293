package bus

import (
	"errors"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message is a message received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// MessageBus provides fan-out publish/subscribe.
type MessageBus interface {
	// Publish sends data to every current subscriber of subject.
	Publish(subject string, data []byte) error

	// Subscribe starts receiving messages published to subject.
	Subscribe(subject string) (Subscription, error)

	// Close shuts the bus down and closes all subscriptions.
	Close() error
}

// Subscription is an active subscription.
type Subscription interface {
	// Messages returns the delivery channel. It is closed when the
	// subscription or the bus ends.
	Messages() <-chan *Message

	// Unsubscribe stops delivery and closes the channel.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels. Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is usable.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}
