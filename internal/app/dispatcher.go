package app

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

// RoomView is the member-facing snapshot of a room document. It carries
// everything a client needs to render state, never the passcode.
type RoomView struct {
	ID           domain.RoomID       `json:"id"`
	Name         domain.RoomName     `json:"name"`
	Host         domain.UserID       `json:"host"`
	Members      []domain.Member     `json:"members"`
	Queue        []domain.QueueItem  `json:"queue"`
	CurrentTrack domain.CurrentTrack `json:"currentTrack"`
	Settings     domain.Settings     `json:"settings"`
}

func NewRoomView(room *domain.Room) RoomView {
	return RoomView{
		ID:           room.ID,
		Name:         room.Name,
		Host:         room.Host,
		Members:      room.Members,
		Queue:        room.Queue,
		CurrentTrack: room.CurrentTrack,
		Settings:     room.Settings,
	}
}

// MusicPayload is the state-relevant slice of a playback mutation.
// The invoker and the rest of the room receive the same payload under
// different event types.
type MusicPayload struct {
	Action       string               `json:"action"`
	CurrentTrack *domain.CurrentTrack `json:"currentTrack,omitempty"`
	Song         *domain.Song         `json:"song,omitempty"`
	CurrentTime  *float64             `json:"currentTime,omitempty"`
	Queue        []domain.QueueItem   `json:"queue,omitempty"`
	Volume       *int                 `json:"volume,omitempty"`
	Timestamp    int64                `json:"timestamp"`
}

// Dispatcher fans accepted mutations out to room members through the
// registry. Emission order equals mutation order because every call
// happens on the room's single worker goroutine.
type Dispatcher struct {
	Registry *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{Registry: reg}
}

func (d *Dispatcher) send(sess core.MemberSession, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Msg("marshal event")
		return
	}
	// At-most-once: a gone or saturated connection is skipped, the
	// client refetches full state on reconnect.
	if err := sess.Signal().TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "app.dispatch").Msg("dropped event")
	}
}

func (d *Dispatcher) ToSession(sid core.SessionID, v any) {
	if sess, ok := d.Registry.GetSession(sid); ok {
		d.send(sess, v)
	}
}

func (d *Dispatcher) BroadcastRoom(roomID domain.RoomID, v any) {
	for _, snap := range d.Registry.MembersOfRoom(roomID) {
		d.send(snap.Session, v)
	}
}

func (d *Dispatcher) BroadcastExcept(roomID domain.RoomID, skip core.SessionID, v any) {
	for _, snap := range d.Registry.RoomMates(roomID, skip) {
		d.send(snap.Session, v)
	}
}

type musicEvent struct {
	Type string `json:"type"`
	MusicPayload
}

// Music delivers a playback mutation: the invoker gets the ack variant,
// everyone else in the room the update variant, same payload.
func (d *Dispatcher) Music(roomID domain.RoomID, invoker core.SessionID, p MusicPayload) {
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().UnixMilli()
	}
	d.ToSession(invoker, musicEvent{Type: "music-control-success", MusicPayload: p})
	d.BroadcastExcept(roomID, invoker, musicEvent{Type: "music-update", MusicPayload: p})
}

func (d *Dispatcher) RoomJoined(sid core.SessionID, view RoomView) {
	d.ToSession(sid, struct {
		Type string   `json:"type"`
		Room RoomView `json:"room"`
	}{Type: "room-joined", Room: view})
}

func (d *Dispatcher) UserJoined(roomID domain.RoomID, skip core.SessionID, member domain.Member) {
	d.BroadcastExcept(roomID, skip, struct {
		Type string        `json:"type"`
		User domain.Member `json:"user"`
	}{Type: "user-joined", User: member})
}

func (d *Dispatcher) RoomLeft(sid core.SessionID) {
	d.ToSession(sid, struct {
		Type string `json:"type"`
	}{Type: "room-left"})
}

func (d *Dispatcher) UserLeft(roomID domain.RoomID, member domain.Member, newHost domain.UserID) {
	d.BroadcastRoom(roomID, struct {
		Type    string        `json:"type"`
		User    domain.Member `json:"user"`
		NewHost domain.UserID `json:"newHost,omitempty"`
	}{Type: "user-left", User: member, NewHost: newHost})
}
