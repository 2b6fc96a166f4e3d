// Package hub owns the shared room and presence state: which sessions are
// in which project rooms, which users have live sessions, and fan-out of
// events to room members.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

// Hub is the single owner of the room and presence tables. The room index
// and the per-session joined-rooms index are two views of the same
// membership relation, so one mutex guards them together; every mutation
// keeps both sides consistent before the lock is released. Fan-out writes
// happen on a snapshot taken under the lock, never while holding it.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]domain.Connection // projectID -> sessionID -> conn
	joined   map[string]map[string]struct{}          // sessionID -> set of projectID
	conns    map[string]domain.Connection            // sessionID -> conn
	presence map[string]map[string]struct{}          // userID -> set of sessionID
}

func New() *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]domain.Connection),
		joined:   make(map[string]map[string]struct{}),
		conns:    make(map[string]domain.Connection),
		presence: make(map[string]map[string]struct{}),
	}
}

// Register records a freshly authenticated session in the presence table.
// The session belongs to no rooms until it sends join-room.
func (h *Hub) Register(conn domain.Connection) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.joined[conn.ID()] = make(map[string]struct{})
	set, ok := h.presence[conn.UserID()]
	if !ok {
		set = make(map[string]struct{})
		h.presence[conn.UserID()] = set
	}
	set[conn.ID()] = struct{}{}
	sessions := len(h.conns)
	h.mu.Unlock()

	sessionsGauge.Set(float64(sessions))
	slog.Info("session registered", "sessionId", conn.ID(), "userId", conn.UserID(), "sessions", sessions)
}

// Unregister removes a session from every room it joined and from the
// presence table, then notifies each room that still has members. Safe to
// call more than once for the same session; only the first call mutates
// and broadcasts.
func (h *Hub) Unregister(conn domain.Connection) {
	sid := conn.ID()

	h.mu.Lock()
	sessionRooms, ok := h.joined[sid]
	if !ok {
		h.mu.Unlock()
		return
	}
	affected := make([]string, 0, len(sessionRooms))
	for projectID := range sessionRooms {
		h.removeMemberLocked(projectID, sid)
		if len(h.rooms[projectID]) > 0 {
			affected = append(affected, projectID)
		}
	}
	delete(h.joined, sid)
	delete(h.conns, sid)
	if set := h.presence[conn.UserID()]; set != nil {
		delete(set, sid)
		if len(set) == 0 {
			delete(h.presence, conn.UserID())
		}
	}
	sessions := len(h.conns)
	h.mu.Unlock()

	sessionsGauge.Set(float64(sessions))
	slog.Info("session unregistered", "sessionId", sid, "userId", conn.UserID(), "sessions", sessions)

	for _, projectID := range affected {
		ev := domain.NewEvent(domain.EventUserDisconnected, projectID, map[string]string{
			"userId":    conn.UserID(),
			"userLabel": conn.UserLabel(),
		})
		h.Publish(projectID, ev, sid, true)
	}
}

// Join adds the session to a project room, creating the room on first
// join. Joining a room the session is already in is a no-op: the returned
// count is unchanged and joined is false, so callers skip the user-joined
// broadcast.
func (h *Hub) Join(projectID string, conn domain.Connection) (count int, joinedNow bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionRooms, ok := h.joined[conn.ID()]
	if !ok {
		// Unregistered session, nothing to index against.
		return 0, false
	}
	members, ok := h.rooms[projectID]
	if !ok {
		members = make(map[string]domain.Connection)
		h.rooms[projectID] = members
		roomsGauge.Set(float64(len(h.rooms)))
	}
	if _, already := members[conn.ID()]; already {
		return len(members), false
	}
	members[conn.ID()] = conn
	sessionRooms[projectID] = struct{}{}
	return len(members), true
}

// Leave removes the session from a room, deleting the room when it
// empties. Returns false when the session was not a member.
func (h *Hub) Leave(projectID string, conn domain.Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[projectID]
	if !ok {
		return false
	}
	if _, member := members[conn.ID()]; !member {
		return false
	}
	h.removeMemberLocked(projectID, conn.ID())
	if sessionRooms := h.joined[conn.ID()]; sessionRooms != nil {
		delete(sessionRooms, projectID)
	}
	return true
}

// removeMemberLocked drops sid from the room index only; callers maintain
// the joined index. Must hold h.mu.
func (h *Hub) removeMemberLocked(projectID, sid string) {
	members := h.rooms[projectID]
	delete(members, sid)
	if len(members) == 0 {
		delete(h.rooms, projectID)
		roomsGauge.Set(float64(len(h.rooms)))
		slog.Info("room removed", "projectId", projectID)
	}
}

func (h *Hub) IsMember(projectID, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[projectID][sessionID]
	return ok
}

// Members returns a snapshot of the room's current connections.
func (h *Hub) Members(projectID string) []domain.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]domain.Connection, 0, len(h.rooms[projectID]))
	for _, conn := range h.rooms[projectID] {
		members = append(members, conn)
	}
	return members
}

// Publish delivers one event to every member of the room, skipping the
// origin session when excludeOrigin is set. A failed write to one member
// is logged and counted but never stops delivery to the rest; the failing
// transport's own close path handles its cleanup.
func (h *Hub) Publish(projectID string, ev domain.Event, originID string, excludeOrigin bool) {
	members := h.Members(projectID)
	if len(members) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event marshal failed", "type", ev.Type, "projectId", projectID, "error", err)
		return
	}

	for _, conn := range members {
		if excludeOrigin && conn.ID() == originID {
			continue
		}
		if err := conn.Send(data); err != nil {
			deliveryFailures.Inc()
			slog.Warn("delivery failed", "type", ev.Type, "projectId", projectID, "sessionId", conn.ID(), "error", err)
			continue
		}
		eventsDelivered.Inc()
	}
}

// IsActive reports whether the user has at least one live session.
func (h *Hub) IsActive(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence[userID]) > 0
}

// SessionsOf returns the session IDs currently active for a user.
func (h *Hub) SessionsOf(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.presence[userID]))
	for sid := range h.presence[userID] {
		ids = append(ids, sid)
	}
	return ids
}

// Stats is a point-in-time read of the hub for the status endpoint.
type Stats struct {
	ConnectedSessions int            `json:"connectedSessions"`
	ActiveRooms       int            `json:"activeRooms"`
	PerRoomCounts     map[string]int `json:"perRoomCounts"`
	ServerTime        int64          `json:"serverTime"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	per := make(map[string]int, len(h.rooms))
	for projectID, members := range h.rooms {
		per[projectID] = len(members)
	}
	return Stats{
		ConnectedSessions: len(h.conns),
		ActiveRooms:       len(h.rooms),
		PerRoomCounts:     per,
		ServerTime:        time.Now().UnixMilli(),
	}
}
