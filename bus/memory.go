package bus

import (
	"sync"
)

// MemoryBus implements MessageBus in process.
type MemoryBus struct {
	config Config

	mu     sync.Mutex
	subs   map[string][]*memorySub
	closed bool
}

type memorySub struct {
	subject string
	bus     *MemoryBus

	mu     sync.Mutex
	ch     chan *Message
	closed bool
}

// NewMemoryBus creates an in-memory bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &MemoryBus{
		config: cfg,
		subs:   make(map[string][]*memorySub),
	}
}

// Publish delivers data to every subscriber of subject.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*memorySub, len(b.subs[subject]))
	copy(subs, b.subs[subject])
	b.mu.Unlock()

	for _, sub := range subs {
		payload := make([]byte, len(data))
		copy(payload, data)
		sub.deliver(&Message{Subject: subject, Data: payload})
	}
	return nil
}

// Subscribe creates a subscription to subject.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySub{
		subject: subject,
		bus:     b,
		ch:      make(chan *Message, b.config.BufferSize),
	}
	b.subs[subject] = append(b.subs[subject], sub)
	return sub, nil
}

// Close shuts down the bus and all of its subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.close()
		}
	}
	return nil
}

func (b *MemoryBus) remove(target *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.subject]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.subject] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (s *memorySub) deliver(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// buffer full, drop
	}
}

func (s *memorySub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Messages returns the delivery channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe stops delivery and closes the channel.
func (s *memorySub) Unsubscribe() error {
	s.bus.remove(s)
	s.close()
	return nil
}
