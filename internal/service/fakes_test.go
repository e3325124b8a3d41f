package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"blinkroom/internal/domain"
	"blinkroom/internal/repository"
)

type busEvent struct {
	channel string
	payload []byte
}

// fakeBus is an in-memory FanoutBus shared by any number of registries, which
// lets tests run the cross-process fanout path inside one process.
type fakeBus struct {
	mu         sync.Mutex
	subs       map[*fakeSub]struct{}
	subscribes int
	unsubs     int
	published  []busEvent
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[*fakeSub]struct{})}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, busEvent{channel: channel, payload: payload})
	var targets []*fakeSub
	for s := range b.subs {
		if s.channel == channel {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.events <- busEvent{channel: channel, payload: payload}
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (repository.BusSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribes++
	s := &fakeSub{
		bus:     b,
		channel: channel,
		events:  make(chan busEvent, 256),
		closed:  make(chan struct{}),
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// inject delivers an event to the subscribers of subChannel while tagging it
// with evtChannel, simulating a shared transport that mixes channels up.
func (b *fakeBus) inject(subChannel, evtChannel string, payload []byte) {
	b.mu.Lock()
	var targets []*fakeSub
	for s := range b.subs {
		if s.channel == subChannel {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.events <- busEvent{channel: evtChannel, payload: payload}
	}
}

func (b *fakeBus) subscribeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes
}

func (b *fakeBus) unsubscribeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubs
}

// publishedMessages decodes every published payload for a channel.
func (b *fakeBus) publishedMessages(channel string) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var msgs []domain.Message
	for _, e := range b.published {
		if e.channel != channel {
			continue
		}
		var m domain.Message
		if err := json.Unmarshal(e.payload, &m); err == nil {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

type fakeSub struct {
	bus       *fakeBus
	channel   string
	events    chan busEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *fakeSub) Next(ctx context.Context) (string, []byte, error) {
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-s.closed:
		return "", nil, errors.New("subscription closed")
	case e := <-s.events:
		return e.channel, e.payload, nil
	}
}

func (s *fakeSub) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.unsubs++
	s.bus.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// stubConn records everything written to it.
type stubConn struct {
	mu       sync.Mutex
	writes   []interface{}
	writeErr error
	closed   bool
}

func (c *stubConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, v)
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *stubConn) writtenAt(i int) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.writes) {
		return nil
	}
	return c.writes[i]
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
