package service

import (
	"context"
	"encoding/json"
	"time"

	"blinkroom/internal/domain"
	"blinkroom/internal/repository"
	"blinkroom/pkg/logger"
)

// Multiplexer bridges the registry to the fanout bus: one bus subscription and
// one listener goroutine per room per process. It also publishes outbound
// messages to the room's channel. Callers must serialize Subscribe and
// RoomSubscription.Close per room; the Registry does this under its per-room
// lock.
type Multiplexer struct {
	bus repository.FanoutBus
	log logger.Logger
}

func NewMultiplexer(bus repository.FanoutBus, log logger.Logger) *Multiplexer {
	return &Multiplexer{bus: bus, log: log}
}

func roomChannel(roomID string) string {
	return "room:" + roomID
}

// RoomSubscription is a live per-room bus subscription plus its listener
// goroutine. Close cancels the listener, waits for it to exit and then
// unsubscribes; only after Close returns may a new subscription for the same
// room be opened.
type RoomSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	sub    repository.BusSubscription
}

func (s *RoomSubscription) Close() error {
	s.cancel()
	<-s.done
	return s.sub.Close()
}

// Subscribe opens the bus subscription for a room and starts its listener
// loop. Every decoded event is handed to deliver.
func (m *Multiplexer) Subscribe(ctx context.Context, roomID string, deliver func(roomID string, msg *domain.Message)) (*RoomSubscription, error) {
	busSub, err := m.bus.Subscribe(ctx, roomChannel(roomID))
	if err != nil {
		return nil, err
	}

	// The listener outlives the joining request; it is bound to the
	// subscription's own lifetime, not the caller's context.
	listenCtx, cancel := context.WithCancel(context.Background())
	rs := &RoomSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
		sub:    busSub,
	}

	go m.listen(listenCtx, roomID, busSub, deliver, rs.done)

	return rs, nil
}

// Publish serializes the message and publishes it to the room's channel.
// A process with local connections in the room receives its own publishes back
// through the subscription; the history snapshot is the only message written
// to a client outside this path.
func (m *Multiplexer) Publish(ctx context.Context, roomID string, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.bus.Publish(ctx, roomChannel(roomID), data)
}

func (m *Multiplexer) listen(ctx context.Context, roomID string, sub repository.BusSubscription, deliver func(string, *domain.Message), done chan struct{}) {
	defer close(done)

	channel := roomChannel(roomID)
	for {
		ch, payload, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled by the last leave; a normal exit.
				return
			}
			m.log.Warn("Bus listener receive failed", "room_id", roomID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// A shared transport could hand us an event for another channel;
		// never let it cross rooms.
		if ch != channel {
			continue
		}

		var msg domain.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			m.log.Warn("Dropping undecodable fanout payload", "room_id", roomID, "error", err)
			continue
		}

		deliver(roomID, &msg)
	}
}
