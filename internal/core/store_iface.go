package core

import (
	"context"
	"time"

	"github.com/auxroom/auxroom/internal/domain"
)

// ChatEntry is one line of room history. The engine only ever appends
// system entries and relays user messages; richer chat features live in
// the chat collaborator.
type ChatEntry struct {
	ID        string        `json:"id"`
	RoomID    domain.RoomID `json:"roomId"`
	UserID    domain.UserID `json:"userId,omitempty"`
	Username  string        `json:"username,omitempty"`
	Content   string        `json:"content"`
	System    bool          `json:"system"`
	CreatedAt time.Time     `json:"createdAt"`
}

// RoomStore is the persistence boundary of the sync engine. The room
// document is read in full and written back in full; PutRoom enforces
// optimistic concurrency on Room.Version.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	PutRoom(ctx context.Context, room *domain.Room) error

	PutSong(ctx context.Context, song *domain.Song) error
	GetSong(ctx context.Context, id domain.SongID) (*domain.Song, error)

	AppendChat(ctx context.Context, entry ChatEntry) error
	RecentChat(ctx context.Context, roomID domain.RoomID, limit int) ([]ChatEntry, error)

	ListRooms(ctx context.Context) ([]*domain.Room, error)
	Close() error
}
