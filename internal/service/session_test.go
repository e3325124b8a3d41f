package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"blinkroom/internal/domain"
	"blinkroom/internal/service"
	apperrors "blinkroom/pkg/errors"
	"blinkroom/pkg/logger"
)

type stubRoomRepo struct {
	rooms map[string]*domain.Room
}

func (r *stubRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	r.rooms[room.ID] = room
	return nil
}

func (r *stubRoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if room, ok := r.rooms[id]; ok {
		return room, nil
	}
	return nil, apperrors.ErrRoomNotFound
}

type stubMessageLog struct {
	mu       sync.Mutex
	history  []domain.Message
	appended []domain.Message
}

func (l *stubMessageLog) Append(ctx context.Context, roomID string, msg *domain.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended = append(l.appended, *msg)
	return nil
}

func (l *stubMessageLog) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) > limit {
		return l.history[len(l.history)-limit:], nil
	}
	return l.history, nil
}

func (l *stubMessageLog) appendedMessages() []domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Message(nil), l.appended...)
}

type readStep struct {
	payload interface{}
	raw     []byte
}

// scriptConn extends stubConn with a scripted read side. Closing the reads
// channel ends the session like a client disconnect.
type scriptConn struct {
	stubConn
	reads chan readStep
}

func newScriptConn() *scriptConn {
	return &scriptConn{reads: make(chan readStep, 16)}
}

func (c *scriptConn) ReadJSON(v interface{}) error {
	step, ok := <-c.reads
	if !ok {
		return errors.New("websocket: close 1000 (normal)")
	}
	if step.raw != nil {
		return json.Unmarshal(step.raw, v)
	}
	data, err := json.Marshal(step.payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// overlapConn stalls inside WriteJSON long enough that a second concurrent
// writer would be caught in the act. The real transport permits one writer at
// a time, so any observed overlap is a defect.
type overlapConn struct {
	mu       sync.Mutex
	inflight int
	overlaps int
	writes   int
	reads    chan readStep
}

func newOverlapConn() *overlapConn {
	return &overlapConn{reads: make(chan readStep, 16)}
}

func (c *overlapConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	c.inflight++
	if c.inflight > 1 {
		c.overlaps++
	}
	c.mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	c.mu.Lock()
	c.inflight--
	c.writes++
	c.mu.Unlock()
	return nil
}

func (c *overlapConn) Close() error {
	return nil
}

func (c *overlapConn) ReadJSON(v interface{}) error {
	step, ok := <-c.reads
	if !ok {
		return errors.New("websocket: close 1000 (normal)")
	}
	if step.raw != nil {
		return json.Unmarshal(step.raw, v)
	}
	data, err := json.Marshal(step.payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *overlapConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *overlapConn) overlapCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlaps
}

type sessionEnv struct {
	bus      *fakeBus
	rooms    *stubRoomRepo
	msgLog   *stubMessageLog
	registry *service.Registry
	sessions service.SessionService
}

func newSessionEnv(historyLimit int) *sessionEnv {
	log := logger.NewNop()
	bus := newFakeBus()
	mux := service.NewMultiplexer(bus, log)
	registry := service.NewRegistry(mux, log)
	rooms := &stubRoomRepo{rooms: make(map[string]*domain.Room)}
	msgLog := &stubMessageLog{}

	return &sessionEnv{
		bus:      bus,
		rooms:    rooms,
		msgLog:   msgLog,
		registry: registry,
		sessions: service.NewSessionService(rooms, msgLog, registry, mux, historyLimit, log),
	}
}

func (e *sessionEnv) addRoom(id string, expiresIn time.Duration) {
	now := time.Now().UTC()
	e.rooms.rooms[id] = &domain.Room{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
		IsActive:  true,
	}
}

func TestSessionRoomNotFound(t *testing.T) {
	env := newSessionEnv(50)
	conn := newScriptConn()

	err := env.sessions.Run(context.Background(), "NOPE01", conn)
	if !errors.Is(err, apperrors.ErrRoomNotFound) {
		t.Fatalf("Expected ErrRoomNotFound, got %v", err)
	}
	if got := env.bus.subscribeCount(); got != 0 {
		t.Errorf("Invalid room must not touch the bus, subscribes=%d", got)
	}
}

func TestSessionRoomExpired(t *testing.T) {
	env := newSessionEnv(50)
	env.addRoom("OLD001", -time.Minute)
	conn := newScriptConn()

	err := env.sessions.Run(context.Background(), "OLD001", conn)
	if !errors.Is(err, apperrors.ErrRoomExpired) {
		t.Fatalf("Expected ErrRoomExpired, got %v", err)
	}
	if got := env.bus.subscribeCount(); got != 0 {
		t.Errorf("Expired room must not touch the bus, subscribes=%d", got)
	}
}

func TestSessionHistoryThenSelfEcho(t *testing.T) {
	env := newSessionEnv(50)
	env.addRoom("AB12CD", time.Hour)
	env.msgLog.history = []domain.Message{
		*domain.NewChatMessage("msg_a", "WiseOwl", "earlier"),
	}

	conn := newScriptConn()
	done := make(chan error, 1)
	go func() {
		done <- env.sessions.Run(context.Background(), "AB12CD", conn)
	}()

	// First write is the history snapshot, sent before anything else.
	waitFor(t, time.Second, func() bool { return conn.writeCount() >= 1 }, "history snapshot never sent")
	history, ok := conn.writtenAt(0).(*domain.MessageHistory)
	if !ok {
		t.Fatalf("First write is not a history snapshot: %T", conn.writtenAt(0))
	}
	if history.Type != domain.MessageTypeHistory || len(history.Messages) != 1 || history.Username == "" {
		t.Fatalf("Unexpected history snapshot: %#v", history)
	}

	conn.reads <- readStep{payload: domain.InboundPayload{Contents: "hi"}}

	// The sender's own message comes back through the ordinary broadcast
	// path; nothing suppresses self-echo.
	waitFor(t, time.Second, func() bool {
		for i := 1; i < conn.writeCount(); i++ {
			if msg, ok := conn.writtenAt(i).(*domain.Message); ok &&
				msg.Type == domain.MessageTypeChat && msg.Contents == "hi" {
				return true
			}
		}
		return false
	}, "own chat message was not echoed back")

	appended := env.msgLog.appendedMessages()
	if len(appended) != 1 || appended[0].Contents != "hi" {
		t.Fatalf("Expected 1 appended message, got %#v", appended)
	}
	if !strings.HasPrefix(appended[0].ID, "msg_") {
		t.Errorf("Chat message id %q missing msg_ prefix", appended[0].ID)
	}
	if appended[0].Timestamp.IsZero() {
		t.Error("Chat message has no timestamp")
	}

	close(conn.reads)
	if err := <-done; err != nil {
		t.Fatalf("Session ended with error: %v", err)
	}

	published := env.bus.publishedMessages("room:AB12CD")
	var joined, left bool
	for _, m := range published {
		switch m.Type {
		case domain.MessageTypeUserJoined:
			joined = m.Username == history.Username
		case domain.MessageTypeUserLeft:
			left = m.Username == history.Username
		}
	}
	if !joined || !left {
		t.Errorf("Expected user_joined and user_left for %q, published=%#v", history.Username, published)
	}
}

func TestSessionContentsBoundaries(t *testing.T) {
	env := newSessionEnv(50)
	env.addRoom("AB12CD", time.Hour)

	conn := newScriptConn()
	done := make(chan error, 1)
	go func() {
		done <- env.sessions.Run(context.Background(), "AB12CD", conn)
	}()

	// 2001 characters is rejected without ending the session;
	// 2000 characters is accepted afterwards on the same connection.
	conn.reads <- readStep{payload: domain.InboundPayload{Contents: strings.Repeat("a", 2001)}}
	conn.reads <- readStep{payload: domain.InboundPayload{Contents: strings.Repeat("b", 2000)}}

	waitFor(t, time.Second, func() bool {
		return len(env.msgLog.appendedMessages()) == 1
	}, "valid message after an oversized one was not processed")

	appended := env.msgLog.appendedMessages()
	if got := len(appended[0].Contents); got != 2000 {
		t.Errorf("Expected the 2000-char message, got len %d", got)
	}

	close(conn.reads)
	if err := <-done; err != nil {
		t.Fatalf("Session ended with error: %v", err)
	}
}

func TestSessionMalformedPayloadKeepsConnection(t *testing.T) {
	env := newSessionEnv(50)
	env.addRoom("AB12CD", time.Hour)

	conn := newScriptConn()
	done := make(chan error, 1)
	go func() {
		done <- env.sessions.Run(context.Background(), "AB12CD", conn)
	}()

	conn.reads <- readStep{raw: []byte("{this is not json")}
	conn.reads <- readStep{payload: domain.InboundPayload{Contents: "still here"}}

	waitFor(t, time.Second, func() bool {
		return len(env.msgLog.appendedMessages()) == 1
	}, "connection did not survive a malformed payload")

	close(conn.reads)
	if err := <-done; err != nil {
		t.Fatalf("Session ended with error: %v", err)
	}
}

func TestSessionSerializesWritesToConnection(t *testing.T) {
	env := newSessionEnv(50)
	env.addRoom("AB12CD", time.Hour)

	conn := newOverlapConn()
	done := make(chan error, 1)
	go func() {
		done <- env.sessions.Run(context.Background(), "AB12CD", conn)
	}()

	// The room subscription is live before the history snapshot is written, so
	// a broadcast arriving right then contends for the same connection.
	waitFor(t, time.Second, func() bool { return env.bus.subscribeCount() == 1 }, "session never subscribed")

	payload, err := json.Marshal(domain.NewChatMessage("msg_1", "WiseOwl", "mid-snapshot"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := env.bus.Publish(context.Background(), "room:AB12CD", payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return conn.writeCount() >= 2 }, "snapshot and broadcast were not both written")
	if got := conn.overlapCount(); got != 0 {
		t.Fatalf("Expected writes to the connection to be serialized, got %d overlapping writes", got)
	}

	close(conn.reads)
	if err := <-done; err != nil {
		t.Fatalf("Session ended with error: %v", err)
	}
}

func TestSessionTeardownAndRejoin(t *testing.T) {
	env := newSessionEnv(50)
	env.addRoom("AB12CD", time.Hour)

	runSession := func() {
		conn := newScriptConn()
		done := make(chan error, 1)
		go func() {
			done <- env.sessions.Run(context.Background(), "AB12CD", conn)
		}()
		waitFor(t, time.Second, func() bool { return conn.writeCount() >= 1 }, "session never started")
		close(conn.reads)
		if err := <-done; err != nil {
			t.Fatalf("Session ended with error: %v", err)
		}
	}

	runSession()
	if got := env.bus.unsubscribeCount(); got != 1 {
		t.Fatalf("Expected subscription teardown after last disconnect, unsubscribes=%d", got)
	}
	if got := env.registry.LocalCount("AB12CD"); got != 0 {
		t.Fatalf("Expected no residual connections, got %d", got)
	}

	// A later join recreates the subscription from scratch.
	runSession()
	if got := env.bus.subscribeCount(); got != 2 {
		t.Errorf("Expected a fresh subscription on rejoin, subscribes=%d", got)
	}
}
