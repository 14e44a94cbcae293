// Package bus carries small coordination messages between renderkit
// processes that share one provider quota.
//
// Two implementations satisfy MessageBus: MemoryBus for tests and for
// several schedulers inside one process, and NATSBus for schedulers running
// on different machines. Only fan-out pub/sub is provided; every subscriber
// of a subject receives every message published to it.
//
//	b, err := bus.NewNATSBus(bus.NATSConfig{URL: "nats://localhost:4222", Name: "renderkit"})
//	sub, err := b.Subscribe("renderkit.throttle")
//	for msg := range sub.Messages() {
//	    // handle msg.Data
//	}
//
// Delivery is best effort. A subscriber whose buffer is full drops messages
// rather than blocking the publisher.
package bus
