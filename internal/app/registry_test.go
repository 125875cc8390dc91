package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auxroom/auxroom/internal/core"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func bind(r *Registry, sid core.SessionID) core.MemberSession {
	user := r.GetOrCreateUser(sid)
	sess := core.NewMemberSession(user, nopConn{})
	r.BindSignal(sid, sess, nil)
	return sess
}

func TestRegistryBindLookupUnbind(t *testing.T) {
	r := NewRegistry()
	sess := bind(r, "s1")

	got, ok := r.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, sess, got)

	r.Unbind("s1")
	_, ok = r.GetSession("s1")
	assert.False(t, ok)
}

func TestRegistryRoomBinding(t *testing.T) {
	r := NewRegistry()
	bind(r, "s1")

	_, _, ok := r.RoomOf("s1")
	assert.False(t, ok, "fresh session is not in a room")

	require.True(t, r.UpdateRoom("s1", "room-a"))
	roomID, _, ok := r.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, "room-a", string(roomID))

	r.RemoveRoom("s1")
	_, _, ok = r.RoomOf("s1")
	assert.False(t, ok)

	// Session itself survives leaving a room.
	_, ok = r.GetSession("s1")
	assert.True(t, ok)
}

func TestRegistryUpdateRoomUnknownSession(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.UpdateRoom("ghost", "room-a"))
}

func TestRegistryMembersOfRoom(t *testing.T) {
	r := NewRegistry()
	bind(r, "s1")
	bind(r, "s2")
	bind(r, "s3")
	r.UpdateRoom("s1", "room-a")
	r.UpdateRoom("s2", "room-a")
	r.UpdateRoom("s3", "room-b")

	assert.Len(t, r.MembersOfRoom("room-a"), 2)
	assert.Len(t, r.MembersOfRoom("room-b"), 1)
	assert.Empty(t, r.MembersOfRoom("room-c"))

	mates := r.RoomMates("room-a", "s1")
	require.Len(t, mates, 1)
	assert.Equal(t, core.SessionID("s2"), mates[0].SID)
	assert.Empty(t, r.RoomMates("room-b", "s3"))
}

func TestRegistryUserIdentity(t *testing.T) {
	r := NewRegistry()
	u1 := r.GetOrCreateUser("s1")
	u2 := r.GetOrCreateUser("s1")
	assert.Same(t, u1, u2)
	assert.Equal(t, "guest", u1.Username)

	require.NoError(t, r.UpdateUsername("s1", "alice"))
	assert.Equal(t, "alice", u1.Username)

	err := r.UpdateUsername("s1", "")
	assert.Error(t, err)
}
