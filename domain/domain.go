package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Client -> server message types.
const (
	MsgJoinRoom    = "join-room"
	MsgLeaveRoom   = "leave-room"
	MsgConteUpdate = "conte-update"
	MsgProjectSync = "project-sync"
	MsgEditStart   = "edit-start"
	MsgEditEnd     = "edit-end"
	MsgTypingStart = "typing-start"
	MsgTypingEnd   = "typing-end"
	MsgHeartbeat   = "heartbeat"
)

// Server -> client event types.
const (
	EventConnectionEstablished = "connection-established"
	EventRoomJoined            = "room-joined"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventUserDisconnected      = "user-disconnected"
	EventConteUpdated          = "conte-updated"
	EventProjectSynced         = "project-synced"
	EventEditStarted           = "edit-started"
	EventEditEnded             = "edit-ended"
	EventTypingStarted         = "typing-started"
	EventTypingEnded           = "typing-ended"
	EventHeartbeatAck          = "heartbeat-ack"
	EventError                 = "error"
)

// Error event codes, one per taxonomy class.
const (
	CodeAuth      = "auth"
	CodeForbidden = "forbidden"
	CodeNotFound  = "not-found"
	CodeProtocol  = "protocol"
	CodeInternal  = "internal"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("not authorized for project")
	ErrNotFound     = errors.New("not found")
)

// Identity is the user resolved from a verified credential. Immutable for
// the lifetime of a session.
type Identity struct {
	UserID    string
	UserLabel string
}

// ClientMessage is the inbound envelope. Fields beyond Type are
// type-specific and left empty by kinds that do not use them.
type ClientMessage struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	ConteID   string          `json:"conteId,omitempty"`
	Field     string          `json:"field,omitempty"`
	Updates   json.RawMessage `json:"updates,omitempty"`
}

// Event is the outbound envelope. Timestamp is always set server-side.
type Event struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent stamps an event with the current server time in Unix millis.
func NewEvent(eventType, projectID string, data any) Event {
	return Event{
		Type:      eventType,
		ProjectID: projectID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Connection is one authenticated transport. Send must not block: an
// implementation with a full outbound buffer returns an error instead.
type Connection interface {
	ID() string
	UserID() string
	UserLabel() string
	Send(data []byte) error
	Close() error
}

// Broadcaster is the room-facing surface of the hub, as seen by the
// protocol handlers.
type Broadcaster interface {
	Join(projectID string, conn Connection) (count int, joined bool)
	Leave(projectID string, conn Connection) bool
	IsMember(projectID, sessionID string) bool
	Publish(projectID string, ev Event, originID string, excludeOrigin bool)
}

// MessageHandler consumes one raw inbound frame.
type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

// ProjectService is the external project collaborator. CanAccess is always
// called with a deadline; callers treat a timeout as unauthorized.
type ProjectService interface {
	CanAccess(ctx context.Context, userID, projectID string) (bool, error)
	Snapshot(ctx context.Context, projectID string) (json.RawMessage, error)
}

// ConteStore is the external conte persistence collaborator.
type ConteStore interface {
	Update(ctx context.Context, projectID, conteID string, patch json.RawMessage) (json.RawMessage, error)
}
