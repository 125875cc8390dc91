// Package orch coordinates the sync engine: it resolves identities
// through the registry, serializes mutations on per-room workers,
// applies them against the room store and hands results to the
// dispatcher and the system event log.
package orch

import (
	"context"
	"time"

	"github.com/auxroom/auxroom/internal/app"
	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

type Orchestrator struct {
	Registry *app.Registry
	Workers  *app.Workers
	Store    core.RoomStore
	Dispatch *app.Dispatcher
	Events   *app.SystemEvents

	MaxMembers int
}

// withRoom runs fn on the room's single-writer worker with a fresh
// document snapshot. Everything the engine changes about a room goes
// through here, which is what makes per-room broadcasts ordered.
func (o *Orchestrator) withRoom(ctx context.Context, id domain.RoomID, fn func(*domain.Room) error) error {
	var err error
	o.Workers.Submit(id, func() {
		var room *domain.Room
		room, err = o.Store.GetRoom(ctx, id)
		if err != nil {
			return
		}
		err = fn(room)
	})
	return err
}

func (o *Orchestrator) save(ctx context.Context, room *domain.Room) error {
	room.Touch(time.Now())
	return o.Store.PutRoom(ctx, room)
}

// boundRoom resolves which room the identity currently drives. Control
// events are authorized from this binding, never from the payload alone.
func (o *Orchestrator) boundRoom(sid core.SessionID, claimed domain.RoomID) (domain.RoomID, error) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return "", core.NotFoundf("not in a room")
	}
	if claimed != "" && claimed != roomID {
		return "", core.Unauthorizedf("not a member of room %s", claimed)
	}
	return roomID, nil
}
