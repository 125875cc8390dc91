package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxRoomNameLen = 36

type (
	RoomName string
	RoomID   string
)

type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// QueueItem is one pending song. Order values are monotonically
// increasing per insertion; removals never renumber the rest.
type QueueItem struct {
	SongID  SongID    `json:"songId"`
	AddedBy UserID    `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
	Order   int       `json:"order"`
}

// CurrentTrack is the playback checkpoint shared with every member.
// Zero SongID means no track in progress; then IsPlaying is false and
// StartedAt is nil.
type CurrentTrack struct {
	SongID      SongID     `json:"songId,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CurrentTime float64    `json:"currentTime"`
	IsPlaying   bool       `json:"isPlaying"`
	PlayedBy    UserID     `json:"playedBy,omitempty"`
}

type Settings struct {
	AllowMembersToAddSongs bool       `json:"allowMembersToAddSongs"`
	AllowMembersToSkip     bool       `json:"allowMembersToSkip"`
	AutoPlay               bool       `json:"autoPlay"`
	ShuffleMode            bool       `json:"shuffleMode"`
	RepeatMode             RepeatMode `json:"repeatMode"`
	Volume                 int        `json:"volume"`
}

func DefaultSettings() Settings {
	return Settings{
		AllowMembersToAddSongs: true,
		AutoPlay:               true,
		RepeatMode:             RepeatOff,
		Volume:                 50,
	}
}

// Room is the canonical per-room document. It is read in full, mutated
// in memory and written back in full; Version guards against lost
// updates between concurrent read-modify-write cycles.
type Room struct {
	ID           RoomID       `json:"id"`
	Name         RoomName     `json:"name"`
	Host         UserID       `json:"host"`
	Private      bool         `json:"private"`
	Passcode     string       `json:"passcode,omitempty"`
	Members      []Member     `json:"members"`
	Queue        []QueueItem  `json:"queue"`
	CurrentTrack CurrentTrack `json:"currentTrack"`
	Settings     Settings     `json:"settings"`
	IsActive     bool         `json:"isActive"`
	LastActivity time.Time    `json:"lastActivity"`
	Version      uint64       `json:"version"`
}

func NewRoom(name RoomName, host *User, now time.Time) *Room {
	return &Room{
		ID:           RoomID(uuid.NewString()),
		Name:         name,
		Host:         host.ID,
		Members:      []Member{NewMember(host, RoleHost, now)},
		Settings:     DefaultSettings(),
		IsActive:     true,
		LastActivity: now,
	}
}

// FindMember returns a pointer into Members so callers can flip flags
// in place before writing the document back.
func (r *Room) FindMember(id UserID) *Member {
	for i := range r.Members {
		if r.Members[i].UserID == id {
			return &r.Members[i]
		}
	}
	return nil
}

func (r *Room) RemoveMember(id UserID) bool {
	for i := range r.Members {
		if r.Members[i].UserID == id {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// EarliestMember picks the longest-standing member, ties broken by
// position in the slice. Used for host handover.
func (r *Room) EarliestMember() *Member {
	var best *Member
	for i := range r.Members {
		if best == nil || r.Members[i].JoinedAt.Before(best.JoinedAt) {
			best = &r.Members[i]
		}
	}
	return best
}

// NextOrder is max(existing orders)+1, or 1 for an empty queue.
func (r *Room) NextOrder() int {
	next := 1
	for _, item := range r.Queue {
		if item.Order >= next {
			next = item.Order + 1
		}
	}
	return next
}

func (r *Room) AddToQueue(songID SongID, addedBy UserID, now time.Time) QueueItem {
	item := QueueItem{
		SongID:  songID,
		AddedBy: addedBy,
		AddedAt: now,
		Order:   r.NextOrder(),
	}
	r.Queue = append(r.Queue, item)
	return item
}

// RemoveFromQueue drops the first item with the given song id and keeps
// the remaining orders untouched.
func (r *Room) RemoveFromQueue(songID SongID) bool {
	for i := range r.Queue {
		if r.Queue[i].SongID == songID {
			r.Queue = append(r.Queue[:i], r.Queue[i+1:]...)
			return true
		}
	}
	return false
}

// QueueHead is the item with the lowest order, or nil for an empty queue.
func (r *Room) QueueHead() *QueueItem {
	var head *QueueItem
	for i := range r.Queue {
		if head == nil || r.Queue[i].Order < head.Order {
			head = &r.Queue[i]
		}
	}
	return head
}

// ClearTrack resets CurrentTrack to its stopped form.
func (r *Room) ClearTrack() {
	r.CurrentTrack = CurrentTrack{}
}

func (r *Room) Touch(now time.Time) {
	r.LastActivity = now
}
