package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"blinkroom/internal/domain"
	"blinkroom/internal/repository"
	apperrors "blinkroom/pkg/errors"
	"blinkroom/pkg/ident"
	"blinkroom/pkg/logger"
)

// SessionConn is the transport handle a chat session reads from and writes to.
// *websocket.Conn satisfies it.
type SessionConn interface {
	Conn
	ReadJSON(v interface{}) error
}

// lockedConn serializes writes to the underlying connection. The transport
// allows a single writer at a time, and both the session goroutine (the
// history snapshot) and the room listener (broadcasts) write to the same
// connection, so every write goes through this wrapper.
type lockedConn struct {
	mu   sync.Mutex
	conn Conn
}

func newLockedConn(conn Conn) *lockedConn {
	return &lockedConn{conn: conn}
}

func (c *lockedConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *lockedConn) Close() error {
	return c.conn.Close()
}

// SessionService drives one client connection through its lifecycle:
// validate room, join, replay history, relay messages, leave.
type SessionService interface {
	Run(ctx context.Context, roomID string, conn SessionConn) error
}

type sessionService struct {
	roomRepo     repository.RoomRepository
	msgLog       repository.MessageLogRepository
	registry     *Registry
	mux          *Multiplexer
	historyLimit int
	log          logger.Logger
}

func NewSessionService(
	roomRepo repository.RoomRepository,
	msgLog repository.MessageLogRepository,
	registry *Registry,
	mux *Multiplexer,
	historyLimit int,
	log logger.Logger,
) SessionService {
	return &sessionService{
		roomRepo:     roomRepo,
		msgLog:       msgLog,
		registry:     registry,
		mux:          mux,
		historyLimit: historyLimit,
		log:          log,
	}
}

// Run blocks until the connection ends. It returns ErrRoomNotFound or
// ErrRoomExpired when the room fails its one-time validity check; the caller
// turns those into close reasons. Room validity is not re-checked afterwards.
func (s *sessionService) Run(ctx context.Context, roomID string, conn SessionConn) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsExpired() {
		return apperrors.ErrRoomExpired
	}

	username := ident.NewUsername()
	connID := uuid.NewString()

	// The registry delivers broadcasts to wc from the listener goroutine the
	// moment Join returns; the snapshot write below uses the same wrapper so
	// the two can never write to the transport at once.
	wc := newLockedConn(conn)

	if err := s.registry.Join(ctx, roomID, connID, wc); err != nil {
		return err
	}

	// This cleanup runs exactly once per connection, no matter how the
	// session ends. Leave is idempotent, so a connection already dropped by a
	// failed broadcast delivery is handled the same way.
	defer func() {
		s.registry.Leave(roomID, connID)
		if err := s.mux.Publish(context.Background(), roomID, domain.NewUserLeft(username)); err != nil {
			s.log.Error("Failed to publish user_left event", "room_id", roomID, "error", err)
		}
	}()

	history, err := s.msgLog.Recent(ctx, roomID, s.historyLimit)
	if err != nil {
		s.log.Error("Failed to load message history", "room_id", roomID, "error", err)
		history = nil
	}
	if err := wc.WriteJSON(domain.NewHistory(history, username)); err != nil {
		return nil
	}

	if err := s.mux.Publish(ctx, roomID, domain.NewUserJoined(username)); err != nil {
		s.log.Error("Failed to publish user_joined event", "room_id", roomID, "error", err)
	}

	s.log.Info("Chat session started", "room_id", roomID, "conn_id", connID, "username", username)

	for {
		var in domain.InboundPayload
		if err := conn.ReadJSON(&in); err != nil {
			if isDecodeError(err) {
				// Malformed payload: drop it, keep the connection.
				s.log.Debug("Dropping malformed chat payload", "room_id", roomID, "error", err)
				continue
			}
			// Transport read error or close.
			return nil
		}

		if err := domain.ValidateContents(in.Contents); err != nil {
			s.log.Debug("Rejecting chat payload", "room_id", roomID, "error", err)
			continue
		}

		msg := domain.NewChatMessage(ident.NewMessageID(), username, in.Contents)

		if err := s.msgLog.Append(ctx, roomID, msg); err != nil {
			s.log.Error("Failed to append message to log", "room_id", roomID, "error", err)
		}
		if err := s.mux.Publish(ctx, roomID, msg); err != nil {
			s.log.Error("Failed to publish message", "room_id", roomID, "error", err)
		}
	}
}

// isDecodeError distinguishes a bad JSON payload from a dead transport.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
