// Package roommanager implements the Room Manager (SPEC_FULL.md §4.6): the
// fleet owner constructed once at startup, responsible for admission
// control, activation/join/deactivate routing, and keeping the room list in
// sync with the conference schedule.
//
// Grounded on original_source/src/room_system/room_manager.py for the
// activate/join/deactivate shape, with the map-registry pattern from
// internal/handler/chat_ws.go's getOrCreateRoom absorbed for the in-memory
// lookup (this package owns its own map + sync.RWMutex rather than each
// websocket handler reaching into a shared global).
package roommanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/room"
	"eum-captions/internal/schedule"
)

var (
	// ErrRoomNotFound is returned when no room with the given id exists.
	ErrRoomNotFound = errors.New("roommanager: room not found")
	// ErrDoNotRecord is returned when a recording request targets a room
	// flagged do_not_record.
	ErrDoNotRecord = errors.New("roommanager: room is marked do not record")
	// ErrUnsupportedSourceLang / ErrUnsupportedTargetLang gate host
	// activation requests against the configured ASR/MT language sets.
	ErrUnsupportedSourceLang = errors.New("roommanager: unsupported source language")
	ErrUnsupportedTargetLang = errors.New("roommanager: unsupported target language")
	// ErrAtCapacity is returned when activating a new room would exceed
	// the configured maximum.
	ErrAtCapacity = errors.New("roommanager: maximum capacity reached")
	// ErrRoomInactive is returned when a client tries to join a room that
	// isn't currently active.
	ErrRoomInactive = errors.New("roommanager: room is not active")
)

// RoomSummary is one room's entry in GetRoomList's response.
type RoomSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Track            string `json:"track"`
	Location         string `json:"location"`
	Presenter        string `json:"presenter"`
	Description      string `json:"description"`
	Active           bool   `json:"active"`
	SourceLang       string `json:"source_lang,omitempty"`
	HostConnectionID string `json:"host_connection_id,omitempty"`
}

// RoomListResponse is the full payload GET /room_list returns.
type RoomListResponse struct {
	AvailableSourceLangs []string      `json:"available_source_langs"`
	AvailableTargetLangs []string      `json:"available_target_langs"`
	MaxActiveRooms       int           `json:"max_active_rooms"`
	Rooms                []RoomSummary `json:"rooms"`
}

// Manager is the fleet owner. Constructed once at startup and threaded
// through the application context — never a package-level singleton (§9).
type Manager struct {
	deps             room.Deps
	schedule         *schedule.Provider
	devRoomMeta      room.Metadata
	sourceLangs      map[string]bool
	targetLangs      map[string]bool
	maxActiveRooms   int
	deactivationWait time.Duration
	log              *zap.SugaredLogger

	mu          sync.RWMutex
	rooms       map[string]*room.Room
	activeCount int
}

// New constructs a Room Manager. sourceLangs/targetLangs are the supported
// language sets (ASR configuration, MT service capability list).
func New(deps room.Deps, sched *schedule.Provider, devRoomID string, sourceLangs, targetLangs []string, maxActiveRooms int, deactivationWait time.Duration, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	src := make(map[string]bool, len(sourceLangs))
	for _, l := range sourceLangs {
		src[l] = true
	}
	tgt := make(map[string]bool, len(targetLangs))
	for _, l := range targetLangs {
		tgt[l] = true
	}

	m := &Manager{
		deps:     deps,
		schedule: sched,
		devRoomMeta: room.Metadata{
			ID:          devRoomID,
			Title:       "Development Room",
			Track:       "dev_track",
			Location:    "dev_location",
			Presenter:   "dev_organizer",
			Description: "Room only to be used for development purposes",
			DoNotRecord: false,
		},
		sourceLangs:      src,
		targetLangs:      tgt,
		maxActiveRooms:   maxActiveRooms,
		deactivationWait: deactivationWait,
		log:              logger,
		rooms:            make(map[string]*room.Room),
	}
	m.rooms[devRoomID] = room.New(m.devRoomMeta, deps)
	return m
}

// RefreshFromSchedule rebuilds the room list from the conference's ongoing
// events, always keeping the synthetic dev room alongside them.
func (m *Manager) RefreshFromSchedule(ctx context.Context) error {
	if m.schedule == nil {
		return nil
	}
	conf, err := m.schedule.UpdateData()
	if err != nil {
		return fmt.Errorf("refresh schedule: %w", err)
	}

	ongoing := m.schedule.GetOngoingEvents(conf)

	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := make(map[string]*room.Room, len(ongoing)+1)
	fresh[m.devRoomMeta.ID] = m.rooms[m.devRoomMeta.ID]

	for _, e := range ongoing {
		if existing, ok := m.rooms[e.Code]; ok {
			fresh[e.Code] = existing
			continue
		}
		meta := room.Metadata{
			ID:          e.Code,
			Title:       e.Title,
			Track:       e.Track,
			Location:    e.Room,
			Description: e.Title,
		}
		fresh[e.Code] = room.New(meta, m.deps)
	}
	m.rooms = fresh
	return nil
}

func (m *Manager) lookup(roomID string) (*room.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// ActivateRoomAsHost validates the request and activates (or takes over) the
// room, returning it. It does not run the host loop: the caller runs the
// connection manager's ListenToHost and calls OnHostDisconnected when the
// host disconnects.
func (m *Manager) ActivateRoomAsHost(ctx context.Context, hostKey, roomID, sourceLang, targetLang string, saveTranscript, publicTranscript bool) (*room.Room, error) {
	r, ok := m.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if saveTranscript && r.DoNotRecord {
		return nil, ErrDoNotRecord
	}
	if !m.sourceLangs[sourceLang] {
		return nil, ErrUnsupportedSourceLang
	}
	if !m.targetLangs[targetLang] {
		return nil, ErrUnsupportedTargetLang
	}

	if r.IsActive() {
		r.CancelDeferredDeactivation()
		if r.SourceLang() == sourceLang {
			return r, nil // same source language: new host takes over the audio path
		}
		if err := r.RestartEngine(sourceLang); err != nil {
			return nil, fmt.Errorf("restart engine for new source language: %w", err)
		}
		return r, nil
	}

	m.mu.Lock()
	if m.activeCount >= m.maxActiveRooms {
		m.mu.Unlock()
		return nil, ErrAtCapacity
	}
	m.activeCount++
	m.mu.Unlock()

	if err := r.Activate(ctx, hostKey, sourceLang, targetLang, saveTranscript, publicTranscript); err != nil {
		m.mu.Lock()
		m.activeCount--
		m.mu.Unlock()
		return nil, fmt.Errorf("activate room: %w", err)
	}
	return r, nil
}

// OnHostDisconnected schedules deferred deactivation for roomID, to be
// cancelled by a subsequent reconnect.
func (m *Manager) OnHostDisconnected(roomID string) {
	r, ok := m.lookup(roomID)
	if !ok {
		return
	}
	r.DeferDeactivation(func() {
		m.mu.Lock()
		m.activeCount--
		m.mu.Unlock()
	}, m.deactivationWait)
}

// JoinRoomAsClient validates the room is active and delegates to its
// connection manager.
func (m *Manager) JoinRoomAsClient(roomID string) (*room.Room, error) {
	r, ok := m.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !r.IsActive() {
		return nil, ErrRoomInactive
	}
	return r, nil
}

// DeactivateRoom is the admin-driven immediate teardown path.
func (m *Manager) DeactivateRoom(roomID string) error {
	r, ok := m.lookup(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if !r.IsActive() {
		return ErrRoomInactive
	}
	r.CancelDeferredDeactivation()
	r.Deactivate()
	m.mu.Lock()
	m.activeCount--
	m.mu.Unlock()
	return nil
}

// GetRoomList returns the full fleet snapshot plus the supported language
// sets and capacity limit.
func (m *Manager) GetRoomList() RoomListResponse {
	m.mu.RLock()
	rooms := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		s := RoomSummary{
			ID:          r.ID,
			Title:       r.Title,
			Track:       r.Track,
			Location:    r.Location,
			Presenter:   r.Presenter,
			Description: r.Description,
			Active:      r.IsActive(),
		}
		if s.Active {
			s.SourceLang = r.SourceLang()
			if hostID, ok := r.ConnectionManager().HostID(); ok {
				s.HostConnectionID = hostID.String()
			}
		}
		summaries = append(summaries, s)
	}

	return RoomListResponse{
		AvailableSourceLangs: keys(m.sourceLangs),
		AvailableTargetLangs: keys(m.targetLangs),
		MaxActiveRooms:       m.maxActiveRooms,
		Rooms:                summaries,
	}
}

// ActiveAWSSessions returns the number of rooms currently holding a
// reference on the shared AWS client pool, for capacity diagnostics.
// Returns 0 if the manager was built without a pool.
func (m *Manager) ActiveAWSSessions() int32 {
	if m.deps.AWSPool == nil {
		return 0
	}
	return m.deps.AWSPool.RefCount()
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
