package service

import (
	"context"
	"fmt"
	"sync"

	"blinkroom/internal/domain"
	"blinkroom/pkg/logger"
)

// Conn is the transport-level handle the registry delivers to.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// roomState holds everything the process knows about one room: the locally
// attached connections and, while any exist, the bus subscription feeding them.
// Its mutex serializes join/leave/broadcast for the room; unrelated rooms never
// contend on it.
type roomState struct {
	mu    sync.Mutex
	conns map[string]Conn
	sub   *RoomSubscription
	// closed marks a state being torn down by the last leave. Joins that still
	// hold a reference to it must retry against the registry map.
	closed bool
	// done is closed once the state has been removed from the registry map,
	// releasing joins that are waiting out a teardown.
	done chan struct{}
}

// Registry tracks which connections are attached to which room on this
// process and performs local delivery. A bus subscription for a room exists
// exactly while the room has at least one local connection.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*roomState
	mux   *Multiplexer
	log   logger.Logger
}

func NewRegistry(mux *Multiplexer, log logger.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
		mux:   mux,
		log:   log,
	}
}

// Join registers a connection. The first connection for a room on this process
// opens the room's bus subscription before Join returns, so no published
// message can slip between registration and subscription.
func (r *Registry) Join(ctx context.Context, roomID, connID string, conn Conn) error {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomID]
		if !ok {
			rm = &roomState{conns: make(map[string]Conn), done: make(chan struct{})}
			r.rooms[roomID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.closed {
			// The last leave is tearing this state down; wait for the map
			// entry to disappear, then start over.
			rm.mu.Unlock()
			<-rm.done
			continue
		}

		if _, exists := rm.conns[connID]; exists {
			rm.mu.Unlock()
			return fmt.Errorf("connection %s already joined room %s", connID, roomID)
		}

		if len(rm.conns) == 0 {
			sub, err := r.mux.Subscribe(ctx, roomID, r.BroadcastLocal)
			if err != nil {
				rm.closed = true
				r.dropState(roomID, rm)
				rm.mu.Unlock()
				return err
			}
			rm.sub = sub
		}

		rm.conns[connID] = conn
		rm.mu.Unlock()
		return nil
	}
}

// Leave removes a connection if present; leaving an absent connection is a
// no-op. When the last connection leaves, the room's subscription is closed
// (listener cancelled and awaited) before the room state is discarded, so a
// subsequent Join can never observe a half-dead listener.
func (r *Registry) Leave(roomID, connID string) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	if _, exists := rm.conns[connID]; !exists {
		rm.mu.Unlock()
		return
	}
	delete(rm.conns, connID)

	if len(rm.conns) > 0 {
		rm.mu.Unlock()
		return
	}

	sub := rm.sub
	rm.sub = nil
	rm.closed = true
	rm.mu.Unlock()

	// Close outside the room lock: the listener may be blocked in
	// BroadcastLocal waiting for it. With closed set, that broadcast
	// becomes a no-op and the listener can exit.
	if sub != nil {
		if err := sub.Close(); err != nil {
			r.log.Warn("Failed to close room subscription", "room_id", roomID, "error", err)
		}
	}

	rm.mu.Lock()
	r.dropState(roomID, rm)
	rm.mu.Unlock()
}

// BroadcastLocal delivers a message to every locally registered connection in
// the room. Delivery is best-effort: a failed send closes that connection's
// transport, which makes its session run the ordinary leave path (including
// the user_left event), so a dead connection cannot shadow its slot. Broadcasts
// for one room never interleave.
func (r *Registry) BroadcastLocal(roomID string, msg *domain.Message) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for connID, conn := range rm.conns {
		if err := conn.WriteJSON(msg); err != nil {
			r.log.Warn("Dropping connection after failed delivery",
				"room_id", roomID, "conn_id", connID, "error", err)
			_ = conn.Close()
		}
	}
}

// LocalCount reports how many connections are attached to the room on this
// process.
func (r *Registry) LocalCount(roomID string) int {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.conns)
}

// dropState removes the room state from the map unless it has already been
// replaced by a newer one, then releases joins waiting on the teardown.
// Callers hold rm.mu; dropState runs at most once per state.
func (r *Registry) dropState(roomID string, rm *roomState) {
	r.mu.Lock()
	if r.rooms[roomID] == rm {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	close(rm.done)
}
