package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

// CreateRoom is the host action behind POST /api/rooms. The creator
// becomes host and is bound to the new room right away.
func (o *Orchestrator) CreateRoom(ctx context.Context, sid core.SessionID, name domain.RoomName, private bool, passcode string) (*domain.Room, error) {
	if name == "" {
		return nil, core.Invalidf("room name required")
	}
	if len(name) > domain.MaxRoomNameLen {
		return nil, core.Invalidf("room name too long")
	}
	if private && passcode == "" {
		return nil, core.Invalidf("private room needs a passcode")
	}
	user := o.Registry.GetOrCreateUser(sid)
	room := domain.NewRoom(name, user, time.Now())
	room.Private = private
	room.Passcode = passcode
	if err := o.Store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	o.Registry.UpdateRoom(sid, room.ID)
	log.Info().Str("module", "orch").Str("room", string(room.ID)).Str("host", string(user.ID)).Msg("room created")
	return room, nil
}

// CloseRoom deactivates a room explicitly. Host only.
func (o *Orchestrator) CloseRoom(ctx context.Context, sid core.SessionID, roomID domain.RoomID) error {
	user := o.Registry.GetOrCreateUser(sid)
	err := o.withRoom(ctx, roomID, func(room *domain.Room) error {
		member := room.FindMember(user.ID)
		if member == nil || member.Role != domain.RoleHost {
			return core.Unauthorizedf("only the host may close the room")
		}
		room.IsActive = false
		room.ClearTrack()
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Dispatch.BroadcastRoom(roomID, struct {
			Type string `json:"type"`
		}{Type: "room-left"})
		return nil
	})
	if err != nil {
		return err
	}
	for _, snap := range o.Registry.MembersOfRoom(roomID) {
		o.Registry.RemoveRoom(snap.SID)
	}
	o.Workers.StopRoom(roomID)
	return nil
}

func (o *Orchestrator) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	rooms, err := o.Store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	active := rooms[:0]
	for _, r := range rooms {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (o *Orchestrator) RoomHistory(ctx context.Context, roomID domain.RoomID, limit int) ([]core.ChatEntry, error) {
	if _, err := o.Store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return o.Store.RecentChat(ctx, roomID, limit)
}

// RegisterSong records song metadata handed over by the external
// search/upload collaborators so play(songId) can resolve it.
func (o *Orchestrator) RegisterSong(ctx context.Context, song *domain.Song) error {
	return o.Store.PutSong(ctx, song)
}
