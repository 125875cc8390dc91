package orch_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auxroom/auxroom/internal/app"
	"github.com/auxroom/auxroom/internal/app/orch"
	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
	"github.com/auxroom/auxroom/internal/store"
)

// fakeConn records every frame it was handed, decoded.
type fakeConn struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	var m map[string]any
	if err := json.Unmarshal(fr, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, m := range f.frames {
		if t, ok := m["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeConn) last(typ string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i]["type"] == typ {
			return f.frames[i]
		}
	}
	return nil
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type env struct {
	o  *orch.Orchestrator
	st *store.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := app.NewRegistry()
	workers := app.NewWorkers()
	t.Cleanup(workers.Shutdown)

	o := &orch.Orchestrator{
		Registry:   reg,
		Workers:    workers,
		Store:      st,
		Dispatch:   app.NewDispatcher(reg),
		Events:     app.NewSystemEvents(st),
		MaxMembers: 4,
	}
	return &env{o: o, st: st}
}

func (e *env) connect(t *testing.T, sid core.SessionID, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	user := e.o.Registry.GetOrCreateUser(sid)
	require.NoError(t, e.o.Registry.UpdateUsername(sid, name))
	e.o.Registry.BindSignal(sid, core.NewMemberSession(user, conn), nil)
	return conn
}

func (e *env) createRoom(t *testing.T, hostSID core.SessionID) *domain.Room {
	t.Helper()
	room, err := e.o.CreateRoom(context.Background(), hostSID, "test room", false, "")
	require.NoError(t, err)
	return room
}

func (e *env) addSong(t *testing.T, title, artist string) *domain.Song {
	t.Helper()
	song, err := domain.NewSong(title, artist, "file://"+title+".mp3", 180, "")
	require.NoError(t, err)
	require.NoError(t, e.st.PutSong(context.Background(), song))
	return song
}

func (e *env) room(t *testing.T, id domain.RoomID) *domain.Room {
	t.Helper()
	room, err := e.st.GetRoom(context.Background(), id)
	require.NoError(t, err)
	return room
}

func (e *env) mutateRoom(t *testing.T, id domain.RoomID, fn func(*domain.Room)) {
	t.Helper()
	room := e.room(t, id)
	fn(room)
	require.NoError(t, e.st.PutRoom(context.Background(), room))
}

func (e *env) history(t *testing.T, id domain.RoomID) []core.ChatEntry {
	t.Helper()
	entries, err := e.st.RecentChat(context.Background(), id, 0)
	require.NoError(t, err)
	return entries
}

func TestJoinIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")

	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))

	got := e.room(t, room.ID)
	require.Len(t, got.Members, 2)
	member := got.FindMember("bob")
	require.NotNil(t, member)
	assert.True(t, member.IsOnline)
	assert.Equal(t, domain.RoleMember, member.Role)
}

func TestCreateRoomNameTooLong(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")

	// Multi-byte runes push past the byte limit; the name is rejected
	// whole, never cut mid-rune.
	long := domain.RoomName(strings.Repeat("ü", domain.MaxRoomNameLen))
	_, err := e.o.CreateRoom(ctx, "host", long, false, "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestJoinWrongPasscode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room, err := e.o.CreateRoom(ctx, "host", "secret room", true, "open sesame")
	require.NoError(t, err)

	e.connect(t, "bob", "bob")
	err = e.o.Join(ctx, "bob", room.ID, "wrong")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAuthorization))
	assert.Len(t, e.room(t, room.ID).Members, 1)

	require.NoError(t, e.o.Join(ctx, "bob", room.ID, "open sesame"))
	assert.Len(t, e.room(t, room.ID).Members, 2)
}

func TestJoinFull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	for _, sid := range []core.SessionID{"u1", "u2", "u3"} {
		e.connect(t, sid, string(sid))
		require.NoError(t, e.o.Join(ctx, sid, room.ID, ""))
	}

	e.connect(t, "u4", "u4")
	err := e.o.Join(ctx, "u4", room.ID, "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConflict))
}

func TestJoinInactiveRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.mutateRoom(t, room.ID, func(r *domain.Room) { r.IsActive = false })

	e.connect(t, "bob", "bob")
	err := e.o.Join(ctx, "bob", room.ID, "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestHostLeavePromotesEarliestJoiner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hostConn := e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")

	bobConn := e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	time.Sleep(2 * time.Millisecond)
	e.connect(t, "carol", "carol")
	require.NoError(t, e.o.Join(ctx, "carol", room.ID, ""))

	require.NoError(t, e.o.Leave(ctx, "host"))

	got := e.room(t, room.ID)
	assert.True(t, got.IsActive)
	require.Len(t, got.Members, 2)
	assert.Equal(t, domain.UserID("bob"), got.Host)
	promoted := got.FindMember("bob")
	require.NotNil(t, promoted)
	assert.Equal(t, domain.RoleHost, promoted.Role)

	assert.Contains(t, hostConn.types(), "room-left")
	left := bobConn.last("user-left")
	require.NotNil(t, left)
	assert.Equal(t, "bob", left["newHost"])

	var sawLeave bool
	for _, entry := range e.history(t, room.ID) {
		if entry.System && entry.Content == "alice left the room" {
			sawLeave = true
		}
	}
	assert.True(t, sawLeave, "leave must be recorded as a system event")
}

func TestLastLeaveDeactivatesRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hostConn := e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")

	require.NoError(t, e.o.Leave(ctx, "host"))

	got := e.room(t, room.ID)
	assert.False(t, got.IsActive)
	assert.Empty(t, got.Members)
	assert.Empty(t, got.CurrentTrack.SongID)
	assert.Contains(t, hostConn.types(), "room-left")

	// Deactivation suppresses the leave system event.
	for _, entry := range e.history(t, room.ID) {
		assert.NotContains(t, entry.Content, "left the room")
	}
}

func TestPlayThenPauseOrdering(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hostConn := e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	bobConn := e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	song := e.addSong(t, "Song X", "Artist X")
	bobConn.reset()
	hostConn.reset()

	require.NoError(t, e.o.Play(ctx, "host", room.ID, song.ID, 0))
	require.NoError(t, e.o.Pause(ctx, "host", room.ID, 5))

	got := e.room(t, room.ID)
	assert.Equal(t, song.ID, got.CurrentTrack.SongID)
	assert.False(t, got.CurrentTrack.IsPlaying)
	assert.Equal(t, float64(5), got.CurrentTrack.CurrentTime)

	assert.Equal(t, []string{"music-update", "music-update"}, bobConn.types())
	assert.Equal(t, "play", bobConn.frames[0]["action"])
	assert.Equal(t, "pause", bobConn.frames[1]["action"])

	// The invoker gets the ack variant instead.
	assert.Equal(t, []string{"music-control-success", "music-control-success"}, hostConn.types())
}

func TestPlayConsumesQueueEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	song := e.addSong(t, "Queued", "Someone")
	e.mutateRoom(t, room.ID, func(r *domain.Room) {
		r.AddToQueue(song.ID, "host", time.Now())
	})

	require.NoError(t, e.o.Play(ctx, "host", room.ID, song.ID, 0))

	got := e.room(t, room.ID)
	assert.Empty(t, got.Queue, "playing a queued song removes its entry")
	assert.True(t, got.CurrentTrack.IsPlaying)
	assert.Equal(t, domain.UserID("host"), got.CurrentTrack.PlayedBy)
	require.NotNil(t, got.CurrentTrack.StartedAt)

	stored, err := e.st.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PlayCount)

	var sawStart bool
	for _, entry := range e.history(t, room.ID) {
		if entry.System && entry.Content == "started playing Queued by Someone" {
			sawStart = true
		}
	}
	assert.True(t, sawStart)
}

func TestPlayUnknownSong(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")

	err := e.o.Play(ctx, "host", room.ID, "missing", 0)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	assert.Empty(t, e.room(t, room.ID).CurrentTrack.SongID)
}

func TestResumeWithoutTrack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")

	err := e.o.Play(ctx, "host", room.ID, "", 12)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestResumeInPlace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	song := e.addSong(t, "Song X", "Artist X")
	require.NoError(t, e.o.Play(ctx, "host", room.ID, song.ID, 0))
	require.NoError(t, e.o.Pause(ctx, "host", room.ID, 30))

	require.NoError(t, e.o.Play(ctx, "host", room.ID, "", 30))

	got := e.room(t, room.ID)
	assert.True(t, got.CurrentTrack.IsPlaying)
	assert.Equal(t, float64(30), got.CurrentTrack.CurrentTime)
	assert.Equal(t, song.ID, got.CurrentTrack.SongID)

	// Resume does not double-count plays.
	stored, err := e.st.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PlayCount)
}

func TestNextEmptyQueueStops(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hostConn := e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	song := e.addSong(t, "Song X", "Artist X")
	require.NoError(t, e.o.Play(ctx, "host", room.ID, song.ID, 0))
	hostConn.reset()

	require.NoError(t, e.o.Next(ctx, "host", room.ID))

	got := e.room(t, room.ID)
	assert.Empty(t, got.CurrentTrack.SongID)
	assert.False(t, got.CurrentTrack.IsPlaying)
	assert.Nil(t, got.CurrentTrack.StartedAt)

	ack := hostConn.last("music-control-success")
	require.NotNil(t, ack)
	assert.Equal(t, "stop", ack["action"])
	assert.NotContains(t, ack, "currentTrack", "stop broadcast carries no track reference")
	assert.NotContains(t, ack, "song")
}

func TestNextPlaysQueueHead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	first := e.addSong(t, "First", "A")
	second := e.addSong(t, "Second", "B")
	e.mutateRoom(t, room.ID, func(r *domain.Room) {
		r.AddToQueue(first.ID, "host", time.Now())
		r.AddToQueue(second.ID, "host", time.Now())
	})

	require.NoError(t, e.o.Next(ctx, "host", room.ID))

	got := e.room(t, room.ID)
	assert.Equal(t, first.ID, got.CurrentTrack.SongID)
	assert.True(t, got.CurrentTrack.IsPlaying)
	assert.Equal(t, float64(0), got.CurrentTrack.CurrentTime)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, second.ID, got.Queue[0].SongID)
}

func TestNextShufflePicksFromQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	queued := map[domain.SongID]bool{}
	e.mutateRoom(t, room.ID, func(r *domain.Room) {
		r.Settings.ShuffleMode = true
		for _, title := range []string{"One", "Two", "Three"} {
			song := e.addSong(t, title, "X")
			queued[song.ID] = true
			r.AddToQueue(song.ID, "host", time.Now())
		}
	})

	require.NoError(t, e.o.Next(ctx, "host", room.ID))

	got := e.room(t, room.ID)
	assert.True(t, queued[got.CurrentTrack.SongID])
	assert.Len(t, got.Queue, 2)
	for _, item := range got.Queue {
		assert.NotEqual(t, got.CurrentTrack.SongID, item.SongID)
	}
}

func TestMemberNextDeniedWithoutSkipSetting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hostConn := e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	bobConn := e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	song := e.addSong(t, "Song X", "Artist X")
	e.mutateRoom(t, room.ID, func(r *domain.Room) {
		r.AddToQueue(song.ID, "host", time.Now())
	})
	before := e.room(t, room.ID)
	hostConn.reset()
	bobConn.reset()

	err := e.o.Next(ctx, "bob", room.ID)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAuthorization))

	// No state change, no broadcast to anyone.
	after := e.room(t, room.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Queue, 1)
	assert.Empty(t, hostConn.types())
	assert.Empty(t, bobConn.types())
}

func TestMemberNextAllowedWhenSkippable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	song := e.addSong(t, "Song X", "Artist X")
	e.mutateRoom(t, room.ID, func(r *domain.Room) {
		r.Settings.AllowMembersToSkip = true
		r.AddToQueue(song.ID, "host", time.Now())
	})

	require.NoError(t, e.o.Next(ctx, "bob", room.ID))
	got := e.room(t, room.ID)
	assert.Equal(t, song.ID, got.CurrentTrack.SongID)
	assert.Equal(t, domain.UserID("bob"), got.CurrentTrack.PlayedBy)
}

func TestMemberCannotPlay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	song := e.addSong(t, "Song X", "Artist X")

	err := e.o.Play(ctx, "bob", room.ID, song.ID, 0)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAuthorization))
}

func TestSeekKeepsPlayState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	song := e.addSong(t, "Song X", "Artist X")
	require.NoError(t, e.o.Play(ctx, "host", room.ID, song.ID, 0))
	require.NoError(t, e.o.Pause(ctx, "host", room.ID, 10))
	paused := e.room(t, room.ID)
	before := *paused.CurrentTrack.StartedAt

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, e.o.Seek(ctx, "host", room.ID, 42))

	got := e.room(t, room.ID)
	assert.False(t, got.CurrentTrack.IsPlaying, "seek must not resume playback")
	assert.Equal(t, float64(42), got.CurrentTrack.CurrentTime)
	require.NotNil(t, got.CurrentTrack.StartedAt)
	assert.True(t, got.CurrentTrack.StartedAt.After(before))
}

func TestVolume(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))

	// Any member may change the volume.
	require.NoError(t, e.o.Volume(ctx, "bob", room.ID, 73))
	assert.Equal(t, 73, e.room(t, room.ID).Settings.Volume)

	for _, v := range []int{-1, 101, 500} {
		err := e.o.Volume(ctx, "bob", room.ID, v)
		require.Error(t, err)
		assert.True(t, core.IsKind(err, core.KindConflict))
	}
	assert.Equal(t, 73, e.room(t, room.ID).Settings.Volume)

	require.NoError(t, e.o.Volume(ctx, "bob", room.ID, 0))
	assert.Equal(t, 0, e.room(t, room.ID).Settings.Volume)
	require.NoError(t, e.o.Volume(ctx, "bob", room.ID, 100))
	assert.Equal(t, 100, e.room(t, room.ID).Settings.Volume)
}

func TestNonMemberRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	e.createRoom(t, "host")
	e.connect(t, "mallory", "mallory")

	err := e.o.Pause(ctx, "mallory", "", 0)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindNotFound), "unbound identity is not in a room")
}

func TestDisconnectKeepsMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))

	e.o.OnDisconnect("bob")

	got := e.room(t, room.ID)
	member := got.FindMember("bob")
	require.NotNil(t, member, "membership survives a dropped connection")
	assert.False(t, member.IsOnline)
	_, ok := e.o.Registry.GetSession("bob")
	assert.False(t, ok)
}

func TestAddToQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	song := e.addSong(t, "Song X", "Artist X")

	item, err := e.o.AddToQueue(ctx, "bob", room.ID, song.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Order)
	assert.Equal(t, domain.UserID("bob"), item.AddedBy)

	// Members blocked once the room disallows it.
	e.mutateRoom(t, room.ID, func(r *domain.Room) {
		r.Settings.AllowMembersToAddSongs = false
	})
	_, err = e.o.AddToQueue(ctx, "bob", room.ID, song.ID)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAuthorization))

	// The host still can.
	item, err = e.o.AddToQueue(ctx, "host", room.ID, song.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Order)
}

func TestRemoveFromQueuePermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	e.connect(t, "bob", "bob")
	e.connect(t, "carol", "carol")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	require.NoError(t, e.o.Join(ctx, "carol", room.ID, ""))
	song := e.addSong(t, "Song X", "Artist X")
	_, err := e.o.AddToQueue(ctx, "bob", room.ID, song.ID)
	require.NoError(t, err)

	// A different plain member may not remove bob's entry.
	err = e.o.RemoveFromQueue(ctx, "carol", room.ID, song.ID)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAuthorization))

	require.NoError(t, e.o.RemoveFromQueue(ctx, "bob", room.ID, song.ID))
	assert.Empty(t, e.room(t, room.ID).Queue)
}

func TestSendMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hostConn := e.connect(t, "host", "alice")
	room := e.createRoom(t, "host")
	bobConn := e.connect(t, "bob", "bob")
	require.NoError(t, e.o.Join(ctx, "bob", room.ID, ""))
	hostConn.reset()
	bobConn.reset()

	require.NoError(t, e.o.SendMessage(ctx, "bob", "hello there"))

	for _, conn := range []*fakeConn{hostConn, bobConn} {
		msg := conn.last("new-message")
		require.NotNil(t, msg)
		inner, ok := msg["message"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "hello there", inner["content"])
	}

	entries := e.history(t, room.ID)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "hello there", last.Content)
	assert.False(t, last.System)

	assert.Error(t, e.o.SendMessage(ctx, "bob", ""))
}
