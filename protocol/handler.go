// Package protocol decodes inbound client messages and drives the room
// registry and broadcaster accordingly.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

const defaultAuthTimeout = 3 * time.Second

type Handler struct {
	broadcaster domain.Broadcaster
	projects    domain.ProjectService
	contes      domain.ConteStore
	authTimeout time.Duration
}

func NewHandler(b domain.Broadcaster, projects domain.ProjectService, contes domain.ConteStore, authTimeout time.Duration) *Handler {
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	return &Handler{
		broadcaster: b,
		projects:    projects,
		contes:      contes,
		authTimeout: authTimeout,
	}
}

// Handle decodes one inbound frame and dispatches it. Malformed or
// unrecognized input answers the sender with an error event and nothing
// else; no message can take the connection down from here.
func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg domain.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "sessionId", conn.ID(), "error", err)
		h.sendError(conn, domain.CodeProtocol, "malformed message")
		return
	}

	switch msg.Type {
	case domain.MsgJoinRoom:
		h.joinRoom(conn, msg)
	case domain.MsgLeaveRoom:
		h.leaveRoom(conn, msg)
	case domain.MsgConteUpdate:
		h.conteUpdate(conn, msg)
	case domain.MsgProjectSync:
		h.projectSync(conn, msg)
	case domain.MsgEditStart:
		h.editSignal(conn, msg, domain.EventEditStarted)
	case domain.MsgEditEnd:
		h.editSignal(conn, msg, domain.EventEditEnded)
	case domain.MsgTypingStart:
		h.typingSignal(conn, msg, domain.EventTypingStarted)
	case domain.MsgTypingEnd:
		h.typingSignal(conn, msg, domain.EventTypingEnded)
	case domain.MsgHeartbeat:
		h.sendTo(conn, domain.NewEvent(domain.EventHeartbeatAck, "", nil))
	default:
		slog.Warn("unknown message type", "sessionId", conn.ID(), "type", msg.Type)
		h.sendError(conn, domain.CodeProtocol, "unknown message type: "+msg.Type)
	}
}

func (h *Handler) joinRoom(conn domain.Connection, msg domain.ClientMessage) {
	if msg.ProjectID == "" {
		h.sendError(conn, domain.CodeProtocol, "projectId required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.authTimeout)
	defer cancel()
	ok, err := h.projects.CanAccess(ctx, conn.UserID(), msg.ProjectID)
	if err != nil {
		// Fail closed: a slow or failing authorization check is a refusal.
		slog.Warn("access check failed", "sessionId", conn.ID(), "projectId", msg.ProjectID, "error", err)
		h.sendError(conn, domain.CodeForbidden, "project access denied")
		return
	}
	if !ok {
		h.sendError(conn, domain.CodeForbidden, "project access denied")
		return
	}

	count, joined := h.broadcaster.Join(msg.ProjectID, conn)
	if joined {
		h.broadcaster.Publish(msg.ProjectID, domain.NewEvent(domain.EventUserJoined, msg.ProjectID, map[string]any{
			"sessionId": conn.ID(),
			"userId":    conn.UserID(),
			"userLabel": conn.UserLabel(),
		}), conn.ID(), true)
		slog.Info("joined room", "sessionId", conn.ID(), "projectId", msg.ProjectID, "members", count)
	}
	h.sendTo(conn, domain.NewEvent(domain.EventRoomJoined, msg.ProjectID, map[string]any{
		"memberCount": count,
	}))
}

func (h *Handler) leaveRoom(conn domain.Connection, msg domain.ClientMessage) {
	if msg.ProjectID == "" {
		h.sendError(conn, domain.CodeProtocol, "projectId required")
		return
	}
	if !h.broadcaster.Leave(msg.ProjectID, conn) {
		return
	}
	slog.Info("left room", "sessionId", conn.ID(), "projectId", msg.ProjectID)
	h.broadcaster.Publish(msg.ProjectID, domain.NewEvent(domain.EventUserLeft, msg.ProjectID, map[string]any{
		"sessionId": conn.ID(),
		"userId":    conn.UserID(),
		"userLabel": conn.UserLabel(),
	}), conn.ID(), true)
}

func (h *Handler) conteUpdate(conn domain.Connection, msg domain.ClientMessage) {
	if msg.ProjectID == "" || msg.ConteID == "" {
		h.sendError(conn, domain.CodeProtocol, "projectId and conteId required")
		return
	}
	if !h.requireMember(conn, msg.ProjectID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.authTimeout)
	defer cancel()
	conte, err := h.contes.Update(ctx, msg.ProjectID, msg.ConteID, msg.Updates)
	if err != nil {
		slog.Warn("conte update failed", "sessionId", conn.ID(), "conteId", msg.ConteID, "error", err)
		h.sendError(conn, codeForError(err), "conte update failed")
		return
	}

	h.broadcaster.Publish(msg.ProjectID, domain.NewEvent(domain.EventConteUpdated, msg.ProjectID, map[string]any{
		"conteId":   msg.ConteID,
		"conte":     json.RawMessage(conte),
		"userId":    conn.UserID(),
		"userLabel": conn.UserLabel(),
	}), conn.ID(), true)
}

func (h *Handler) projectSync(conn domain.Connection, msg domain.ClientMessage) {
	if msg.ProjectID == "" {
		h.sendError(conn, domain.CodeProtocol, "projectId required")
		return
	}
	if !h.requireMember(conn, msg.ProjectID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.authTimeout)
	defer cancel()
	snapshot, err := h.projects.Snapshot(ctx, msg.ProjectID)
	if err != nil {
		slog.Warn("project snapshot failed", "sessionId", conn.ID(), "projectId", msg.ProjectID, "error", err)
		h.sendError(conn, codeForError(err), "project sync failed")
		return
	}

	// A sync is an authoritative refresh, so the origin receives it too.
	h.broadcaster.Publish(msg.ProjectID, domain.NewEvent(domain.EventProjectSynced, msg.ProjectID, map[string]any{
		"project": json.RawMessage(snapshot),
	}), conn.ID(), false)
}

// editSignal relays advisory edit markers. They carry no exclusivity: the
// server never refuses a second editor on the same field.
func (h *Handler) editSignal(conn domain.Connection, msg domain.ClientMessage, eventType string) {
	if msg.ProjectID == "" || msg.ConteID == "" {
		h.sendError(conn, domain.CodeProtocol, "projectId and conteId required")
		return
	}
	if !h.requireMember(conn, msg.ProjectID) {
		return
	}
	h.broadcaster.Publish(msg.ProjectID, domain.NewEvent(eventType, msg.ProjectID, map[string]any{
		"conteId":   msg.ConteID,
		"field":     msg.Field,
		"userId":    conn.UserID(),
		"userLabel": conn.UserLabel(),
	}), conn.ID(), true)
}

func (h *Handler) typingSignal(conn domain.Connection, msg domain.ClientMessage, eventType string) {
	if msg.ProjectID == "" {
		h.sendError(conn, domain.CodeProtocol, "projectId required")
		return
	}
	if !h.requireMember(conn, msg.ProjectID) {
		return
	}
	h.broadcaster.Publish(msg.ProjectID, domain.NewEvent(eventType, msg.ProjectID, map[string]any{
		"conteId":   msg.ConteID,
		"userId":    conn.UserID(),
		"userLabel": conn.UserLabel(),
	}), conn.ID(), true)
}

// requireMember gates room-scoped messages on current membership.
func (h *Handler) requireMember(conn domain.Connection, projectID string) bool {
	if h.broadcaster.IsMember(projectID, conn.ID()) {
		return true
	}
	h.sendError(conn, domain.CodeForbidden, "not a member of project "+projectID)
	return false
}

func (h *Handler) sendError(conn domain.Connection, code, message string) {
	h.sendTo(conn, domain.NewEvent(domain.EventError, "", map[string]string{
		"code":    code,
		"message": message,
	}))
}

func (h *Handler) sendTo(conn domain.Connection, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event marshal failed", "type", ev.Type, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("send failed", "type", ev.Type, "sessionId", conn.ID(), "error", err)
	}
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.CodeNotFound
	case errors.Is(err, domain.ErrForbidden):
		return domain.CodeForbidden
	default:
		return domain.CodeInternal
	}
}
