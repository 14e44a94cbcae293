package admission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/renderkit/bus"
)

// DefaultSubject is the bus subject throttle notices are published on.
const DefaultSubject = "renderkit.throttle"

// ErrInvalidBroadcastConfig is returned when a Broadcaster is missing its bus
// or budget.
var ErrInvalidBroadcastConfig = errors.New("invalid broadcast configuration")

// ThrottleNotice tells other processes sharing a provider quota that this
// process was throttled.
type ThrottleNotice struct {
	Source    string    `json:"source"`
	Provider  string    `json:"provider,omitempty"`
	Reason    string    `json:"reason"`
	Limit     int       `json:"limit"` // sender's limit after its own decrease
	Timestamp time.Time `json:"timestamp"`
}

// BroadcastConfig configures a Broadcaster.
type BroadcastConfig struct {
	// Bus carries the notices.
	Bus bus.MessageBus

	// Budget is decreased when a notice from another process arrives.
	Budget *Budget

	// Subject to publish and subscribe on. Default: DefaultSubject
	Subject string

	// Source identifies this process. Default: a random UUID
	Source string

	// Provider is stamped on outgoing notices; incoming notices for a
	// different provider are ignored. Empty matches everything.
	Provider string

	// Cooldown is the minimum time between two remote-triggered decreases.
	// Default: 2s
	Cooldown time.Duration

	// OnNotice is called for every remote notice that is applied.
	OnNotice func(ThrottleNotice)
}

// Broadcaster shares throttle signals between schedulers in different
// processes. Announce publishes a local throttle; notices from other sources
// shrink the local budget, at most once per Cooldown.
type Broadcaster struct {
	config BroadcastConfig
	sub    bus.Subscription

	mu          sync.Mutex
	lastApplied time.Time
	nowFunc     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroadcaster subscribes to the throttle subject and starts applying
// remote notices.
func NewBroadcaster(cfg BroadcastConfig) (*Broadcaster, error) {
	if cfg.Bus == nil || cfg.Budget == nil {
		return nil, ErrInvalidBroadcastConfig
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Source == "" {
		cfg.Source = uuid.NewString()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Second
	}

	sub, err := cfg.Bus.Subscribe(cfg.Subject)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		config:  cfg,
		sub:     sub,
		nowFunc: time.Now,
		cancel:  cancel,
	}

	b.wg.Add(1)
	go b.listen(ctx)
	return b, nil
}

// Source returns the identity stamped on outgoing notices.
func (b *Broadcaster) Source() string {
	return b.config.Source
}

// Announce publishes a throttle notice for this process.
func (b *Broadcaster) Announce(reason string) error {
	data, err := json.Marshal(ThrottleNotice{
		Source:    b.config.Source,
		Provider:  b.config.Provider,
		Reason:    reason,
		Limit:     b.config.Budget.Limit(),
		Timestamp: b.nowFunc(),
	})
	if err != nil {
		return err
	}
	return b.config.Bus.Publish(b.config.Subject, data)
}

func (b *Broadcaster) listen(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.sub.Messages():
			if !ok {
				return
			}
			b.handle(msg)
		}
	}
}

func (b *Broadcaster) handle(msg *bus.Message) {
	var notice ThrottleNotice
	if err := json.Unmarshal(msg.Data, &notice); err != nil {
		return
	}
	if notice.Source == b.config.Source {
		return
	}
	if b.config.Provider != "" && notice.Provider != "" && notice.Provider != b.config.Provider {
		return
	}

	b.mu.Lock()
	now := b.nowFunc()
	if !b.lastApplied.IsZero() && now.Sub(b.lastApplied) < b.config.Cooldown {
		b.mu.Unlock()
		return
	}
	b.lastApplied = now
	b.mu.Unlock()

	b.config.Budget.Decrease()
	if b.config.OnNotice != nil {
		b.config.OnNotice(notice)
	}
}

// Close stops listening. It does not close the bus.
func (b *Broadcaster) Close() error {
	b.cancel()
	err := b.sub.Unsubscribe()
	b.wg.Wait()
	return err
}
