package orch

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/app"
	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

type controlAction string

const (
	actionPlay   controlAction = "play"
	actionPause  controlAction = "pause"
	actionSeek   controlAction = "seek"
	actionNext   controlAction = "next"
	actionVolume controlAction = "volume"
	actionStop   controlAction = "stop"
)

// authorize re-reads the member's role from the freshly loaded document
// and never caches it across events. Volume is open to any member;
// next is open to plain members when the room allows skipping.
func authorize(room *domain.Room, userID domain.UserID, action controlAction) (*domain.Member, error) {
	member := room.FindMember(userID)
	if member == nil {
		return nil, core.Unauthorizedf("not a member of room %s", room.ID)
	}
	switch action {
	case actionVolume:
		return member, nil
	case actionNext:
		if member.CanControl() || room.Settings.AllowMembersToSkip {
			return member, nil
		}
	default:
		if member.CanControl() {
			return member, nil
		}
	}
	return nil, core.Unauthorizedf("%s requires host or moderator", action)
}

// Play starts a specific song or resumes the current one in place.
func (o *Orchestrator) Play(ctx context.Context, sid core.SessionID, roomID domain.RoomID, songID domain.SongID, currentTime float64) error {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, roomID)
	if err != nil {
		return err
	}

	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if _, err := authorize(room, user.ID, actionPlay); err != nil {
			return err
		}

		now := time.Now()
		var song *domain.Song
		if songID != "" {
			var err error
			song, err = o.Store.GetSong(ctx, songID)
			if err != nil {
				return err
			}
			room.CurrentTrack = domain.CurrentTrack{
				SongID:      songID,
				StartedAt:   &now,
				CurrentTime: currentTime,
				IsPlaying:   true,
				PlayedBy:    user.ID,
			}
			// Playing a queued song consumes its queue entry.
			room.RemoveFromQueue(songID)
			song.PlayCount++
			if err := o.Store.PutSong(ctx, song); err != nil {
				return err
			}
		} else {
			if room.CurrentTrack.SongID == "" {
				return core.Invalidf("no track to resume")
			}
			room.CurrentTrack.IsPlaying = true
			room.CurrentTrack.StartedAt = &now
			room.CurrentTrack.CurrentTime = currentTime
		}

		if err := o.save(ctx, room); err != nil {
			return err
		}
		if song != nil {
			o.Events.StartedPlaying(ctx, roomID, song)
		}
		o.Dispatch.Music(roomID, sid, app.MusicPayload{
			Action:       string(actionPlay),
			CurrentTrack: &room.CurrentTrack,
			Song:         song,
			Queue:        room.Queue,
		})
		log.Info().Str("module", "orch").Str("room", string(roomID)).Str("song", string(room.CurrentTrack.SongID)).Msg("play")
		return nil
	})
}

// Pause snapshots the playback position and stops the clock.
func (o *Orchestrator) Pause(ctx context.Context, sid core.SessionID, roomID domain.RoomID, currentTime float64) error {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, roomID)
	if err != nil {
		return err
	}
	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if _, err := authorize(room, user.ID, actionPause); err != nil {
			return err
		}
		room.CurrentTrack.IsPlaying = false
		room.CurrentTrack.CurrentTime = currentTime
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Dispatch.Music(roomID, sid, app.MusicPayload{
			Action:       string(actionPause),
			CurrentTrack: &room.CurrentTrack,
			CurrentTime:  &currentTime,
		})
		return nil
	})
}

// Seek moves the checkpoint without touching the play/pause state.
func (o *Orchestrator) Seek(ctx context.Context, sid core.SessionID, roomID domain.RoomID, currentTime float64) error {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, roomID)
	if err != nil {
		return err
	}
	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if _, err := authorize(room, user.ID, actionSeek); err != nil {
			return err
		}
		if room.CurrentTrack.SongID == "" {
			return core.Invalidf("no track in progress")
		}
		now := time.Now()
		room.CurrentTrack.CurrentTime = currentTime
		room.CurrentTrack.StartedAt = &now
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Dispatch.Music(roomID, sid, app.MusicPayload{
			Action:       string(actionSeek),
			CurrentTrack: &room.CurrentTrack,
			CurrentTime:  &currentTime,
		})
		return nil
	})
}

// Next advances the queue: FIFO head by order, or a uniformly random
// queued item under shuffle. An empty queue stops playback.
func (o *Orchestrator) Next(ctx context.Context, sid core.SessionID, roomID domain.RoomID) error {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, roomID)
	if err != nil {
		return err
	}
	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if _, err := authorize(room, user.ID, actionNext); err != nil {
			return err
		}

		if len(room.Queue) == 0 {
			room.ClearTrack()
			if err := o.save(ctx, room); err != nil {
				return err
			}
			o.Events.QueueEmpty(ctx, roomID)
			o.Dispatch.Music(roomID, sid, app.MusicPayload{Action: string(actionStop)})
			log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("queue empty, stopped")
			return nil
		}

		var chosen *domain.QueueItem
		if room.Settings.ShuffleMode {
			chosen = &room.Queue[rand.IntN(len(room.Queue))]
		} else {
			chosen = room.QueueHead()
		}
		song, err := o.Store.GetSong(ctx, chosen.SongID)
		if err != nil {
			return err
		}

		now := time.Now()
		room.CurrentTrack = domain.CurrentTrack{
			SongID:      song.ID,
			StartedAt:   &now,
			CurrentTime: 0,
			IsPlaying:   true,
			PlayedBy:    user.ID,
		}
		room.RemoveFromQueue(song.ID)
		song.PlayCount++
		if err := o.Store.PutSong(ctx, song); err != nil {
			return err
		}
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Events.StartedPlaying(ctx, roomID, song)
		o.Dispatch.Music(roomID, sid, app.MusicPayload{
			Action:       string(actionNext),
			CurrentTrack: &room.CurrentTrack,
			Song:         song,
			Queue:        room.Queue,
		})
		log.Info().Str("module", "orch").Str("room", string(roomID)).Str("song", string(song.ID)).Msg("next track")
		return nil
	})
}

// Volume applies a room-wide volume setting. Open to any member; range
// checked, no state-machine transition.
func (o *Orchestrator) Volume(ctx context.Context, sid core.SessionID, roomID domain.RoomID, volume int) error {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, roomID)
	if err != nil {
		return err
	}
	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if _, err := authorize(room, user.ID, actionVolume); err != nil {
			return err
		}
		if volume < 0 || volume > 100 {
			return core.Conflictf("volume %d out of range", volume)
		}
		room.Settings.Volume = volume
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Dispatch.Music(roomID, sid, app.MusicPayload{
			Action: string(actionVolume),
			Volume: &volume,
		})
		return nil
	})
}

// AddToQueue appends a song for later playback. This is the path the
// queue REST endpoint shares with the engine.
func (o *Orchestrator) AddToQueue(ctx context.Context, userID domain.UserID, roomID domain.RoomID, songID domain.SongID) (*domain.QueueItem, error) {
	var added domain.QueueItem
	err := o.withRoom(ctx, roomID, func(room *domain.Room) error {
		member := room.FindMember(userID)
		if member == nil {
			return core.Unauthorizedf("not a member of room %s", roomID)
		}
		if !room.Settings.AllowMembersToAddSongs && !member.CanControl() {
			return core.Unauthorizedf("members may not add songs in this room")
		}
		if _, err := o.Store.GetSong(ctx, songID); err != nil {
			return err
		}
		added = room.AddToQueue(songID, userID, time.Now())
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Dispatch.BroadcastRoom(roomID, struct {
			Type  string             `json:"type"`
			Queue []domain.QueueItem `json:"queue"`
		}{Type: "queue-updated", Queue: room.Queue})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveFromQueue drops a pending song. The adder may always remove
// their own entry; anything else needs control rights.
func (o *Orchestrator) RemoveFromQueue(ctx context.Context, userID domain.UserID, roomID domain.RoomID, songID domain.SongID) error {
	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		member := room.FindMember(userID)
		if member == nil {
			return core.Unauthorizedf("not a member of room %s", roomID)
		}
		var item *domain.QueueItem
		for i := range room.Queue {
			if room.Queue[i].SongID == songID {
				item = &room.Queue[i]
				break
			}
		}
		if item == nil {
			return core.NotFoundf("song %s not queued", songID)
		}
		if item.AddedBy != userID && !member.CanControl() {
			return core.Unauthorizedf("only the adder or a moderator may remove this")
		}
		room.RemoveFromQueue(songID)
		if err := o.save(ctx, room); err != nil {
			return err
		}
		o.Dispatch.BroadcastRoom(roomID, struct {
			Type  string             `json:"type"`
			Queue []domain.QueueItem `json:"queue"`
		}{Type: "queue-updated", Queue: room.Queue})
		return nil
	})
}
