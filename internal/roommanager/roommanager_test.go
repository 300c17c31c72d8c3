package roommanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eum-captions/internal/room"
)

func newTestManager(maxActive int) *Manager {
	return New(room.Deps{}, nil, "dev_room_id", []string{"en"}, []string{"ko"}, maxActive, time.Minute, nil)
}

func TestNew_SeedsDevRoom(t *testing.T) {
	m := newTestManager(10)
	list := m.GetRoomList()

	require.Len(t, list.Rooms, 1)
	require.Equal(t, "dev_room_id", list.Rooms[0].ID)
	require.False(t, list.Rooms[0].Active)
	require.ElementsMatch(t, []string{"en"}, list.AvailableSourceLangs)
	require.ElementsMatch(t, []string{"ko"}, list.AvailableTargetLangs)
	require.Equal(t, 10, list.MaxActiveRooms)
}

func TestActivateRoomAsHost_UnknownRoom(t *testing.T) {
	m := newTestManager(10)
	_, err := m.ActivateRoomAsHost(context.Background(), "key", "no-such-room", "en", "ko", false, false)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestActivateRoomAsHost_UnsupportedSourceLang(t *testing.T) {
	m := newTestManager(10)
	_, err := m.ActivateRoomAsHost(context.Background(), "key", "dev_room_id", "fr", "ko", false, false)
	require.ErrorIs(t, err, ErrUnsupportedSourceLang)
}

func TestActivateRoomAsHost_UnsupportedTargetLang(t *testing.T) {
	m := newTestManager(10)
	_, err := m.ActivateRoomAsHost(context.Background(), "key", "dev_room_id", "en", "fr", false, false)
	require.ErrorIs(t, err, ErrUnsupportedTargetLang)
}

func TestActivateRoomAsHost_DoNotRecordRejectsSaveTranscript(t *testing.T) {
	m := newTestManager(10)
	m.mu.Lock()
	m.rooms["locked-room"] = room.New(room.Metadata{ID: "locked-room", DoNotRecord: true}, room.Deps{})
	m.mu.Unlock()

	_, err := m.ActivateRoomAsHost(context.Background(), "key", "locked-room", "en", "ko", true, false)
	require.ErrorIs(t, err, ErrDoNotRecord)
}

func TestActivateRoomAsHost_AtCapacityBeforeActivating(t *testing.T) {
	m := newTestManager(0)
	_, err := m.ActivateRoomAsHost(context.Background(), "key", "dev_room_id", "en", "ko", false, false)
	require.ErrorIs(t, err, ErrAtCapacity)
}

func TestJoinRoomAsClient_UnknownRoom(t *testing.T) {
	m := newTestManager(10)
	_, err := m.JoinRoomAsClient("no-such-room")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinRoomAsClient_InactiveRoom(t *testing.T) {
	m := newTestManager(10)
	_, err := m.JoinRoomAsClient("dev_room_id")
	require.ErrorIs(t, err, ErrRoomInactive)
}

func TestDeactivateRoom_UnknownRoom(t *testing.T) {
	m := newTestManager(10)
	err := m.DeactivateRoom("no-such-room")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDeactivateRoom_AlreadyInactive(t *testing.T) {
	m := newTestManager(10)
	err := m.DeactivateRoom("dev_room_id")
	require.ErrorIs(t, err, ErrRoomInactive)
}

func TestOnHostDisconnected_UnknownRoomIsNoOp(t *testing.T) {
	m := newTestManager(10)
	require.NotPanics(t, func() {
		m.OnHostDisconnected("no-such-room")
	})
}

func TestKeys_ReturnsAllSetMembers(t *testing.T) {
	out := keys(map[string]bool{"a": true, "b": true})
	require.ElementsMatch(t, []string{"a", "b"}, out)
}
