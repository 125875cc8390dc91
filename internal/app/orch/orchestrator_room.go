package orch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/app"
	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

// Join adds the identity to the room, or flips it back online if it is
// already a member. The REST join check (passcode, capacity) and the
// socket join share this path so both observe the same invariants.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, roomID domain.RoomID, passcode string) error {
	user := o.Registry.GetOrCreateUser(sid)

	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if !room.IsActive {
			return core.NotFoundf("room %s is not active", roomID)
		}

		member := room.FindMember(user.ID)
		if member != nil {
			// Idempotent re-join: no duplicate entry, just online.
			member.IsOnline = true
			member.Username = user.Username
		} else {
			if o.MaxMembers > 0 && len(room.Members) >= o.MaxMembers {
				return core.Conflictf("room %s is full", roomID)
			}
			if room.Private && room.Passcode != passcode {
				return core.Unauthorizedf("wrong passcode")
			}
			room.Members = append(room.Members, domain.NewMember(user, domain.RoleMember, time.Now()))
			member = &room.Members[len(room.Members)-1]
		}

		if err := o.save(ctx, room); err != nil {
			return err
		}

		o.Registry.UpdateRoom(sid, roomID)
		o.Events.Joined(ctx, roomID, member.Username)
		o.Dispatch.RoomJoined(sid, app.NewRoomView(room))
		o.Dispatch.UserJoined(roomID, sid, *member)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("joined room")
		return nil
	})
}

// Leave removes the identity's membership. If the host leaves and other
// members remain, the earliest joiner is promoted; if nobody remains
// the room is deactivated, never deleted.
func (o *Orchestrator) Leave(ctx context.Context, sid core.SessionID) error {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, "")
	if err != nil {
		return err
	}

	var deactivated bool
	err = o.withRoom(ctx, roomID, func(room *domain.Room) error {
		member := room.FindMember(user.ID)
		if member == nil {
			return core.NotFoundf("not a member of room %s", roomID)
		}
		leaving := *member
		room.RemoveMember(user.ID)

		var newHost domain.UserID
		if leaving.Role == domain.RoleHost {
			if next := room.EarliestMember(); next != nil {
				next.Role = domain.RoleHost
				room.Host = next.UserID
				newHost = next.UserID
			} else {
				room.IsActive = false
				room.ClearTrack()
				deactivated = true
			}
		} else if len(room.Members) == 0 {
			room.IsActive = false
			room.ClearTrack()
			deactivated = true
		}

		if err := o.save(ctx, room); err != nil {
			return err
		}

		o.Registry.RemoveRoom(sid)
		o.Dispatch.RoomLeft(sid)
		if !deactivated {
			o.Events.Left(ctx, roomID, leaving.Username)
			if newHost != "" {
				if promoted := room.FindMember(newHost); promoted != nil {
					o.Events.HostChanged(ctx, roomID, promoted.Username)
				}
			}
			o.Dispatch.UserLeft(roomID, leaving, newHost)
		}
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Bool("deactivated", deactivated).Msg("left room")
		return nil
	})
	if err != nil {
		return err
	}
	if deactivated {
		// The worker job has finished; safe to drain it now.
		o.Workers.StopRoom(roomID)
	}
	return nil
}

// OnDisconnect releases the transport binding and clears the member's
// online flag. Membership itself survives a dropped connection.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	ctx := context.Background()
	user := o.Registry.GetOrCreateUser(sid)
	if roomID, _, ok := o.Registry.RoomOf(sid); ok {
		err := o.withRoom(ctx, roomID, func(room *domain.Room) error {
			if member := room.FindMember(user.ID); member != nil {
				member.IsOnline = false
				return o.save(ctx, room)
			}
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("offline flag not persisted")
		}
		o.Registry.RemoveRoom(sid)
	}
	o.Registry.Unbind(sid)
}

// SendMessage relays a user chat line: append to history, fan out.
func (o *Orchestrator) SendMessage(ctx context.Context, sid core.SessionID, content string) error {
	if content == "" {
		return core.Invalidf("empty message")
	}
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, "")
	if err != nil {
		return err
	}
	return o.withRoom(ctx, roomID, func(room *domain.Room) error {
		if room.FindMember(user.ID) == nil {
			return core.Unauthorizedf("not a member of room %s", roomID)
		}
		entry := core.ChatEntry{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			UserID:    user.ID,
			Username:  user.Username,
			Content:   content,
			CreatedAt: time.Now(),
		}
		if err := o.Store.AppendChat(ctx, entry); err != nil {
			return err
		}
		o.Dispatch.BroadcastRoom(roomID, struct {
			Type    string         `json:"type"`
			Message core.ChatEntry `json:"message"`
		}{Type: "new-message", Message: entry})
		return nil
	})
}

// Typing and reactions are relay-only; nothing is persisted.
func (o *Orchestrator) Typing(sid core.SessionID, typing bool) {
	user := o.Registry.GetOrCreateUser(sid)
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	o.Dispatch.BroadcastExcept(roomID, sid, struct {
		Type     string        `json:"type"`
		UserID   domain.UserID `json:"userId"`
		Username string        `json:"username"`
		Typing   bool          `json:"typing"`
	}{Type: "user-typing", UserID: user.ID, Username: user.Username, Typing: typing})
}

func (o *Orchestrator) AddReaction(sid core.SessionID, messageID, reaction string) error {
	if messageID == "" || reaction == "" {
		return core.Invalidf("missing message id or reaction")
	}
	user := o.Registry.GetOrCreateUser(sid)
	roomID, err := o.boundRoom(sid, "")
	if err != nil {
		return err
	}
	o.Dispatch.BroadcastRoom(roomID, struct {
		Type      string        `json:"type"`
		MessageID string        `json:"messageId"`
		Reaction  string        `json:"reaction"`
		UserID    domain.UserID `json:"userId"`
	}{Type: "reaction-added", MessageID: messageID, Reaction: reaction, UserID: user.ID})
	return nil
}
