package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

// SystemEvents appends human-readable, system-tagged chat entries for
// membership and track changes. This is the engine's only write into
// the chat-history store.
type SystemEvents struct {
	Store core.RoomStore
}

func NewSystemEvents(store core.RoomStore) *SystemEvents {
	return &SystemEvents{Store: store}
}

func (se *SystemEvents) append(ctx context.Context, roomID domain.RoomID, content string) {
	entry := core.ChatEntry{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Content:   content,
		System:    true,
		CreatedAt: time.Now(),
	}
	if err := se.Store.AppendChat(ctx, entry); err != nil {
		// History is best-effort; the state mutation already happened.
		log.Warn().Err(err).Str("module", "app.events").Str("room", string(roomID)).Msg("append system event")
	}
}

func (se *SystemEvents) Joined(ctx context.Context, roomID domain.RoomID, username string) {
	se.append(ctx, roomID, fmt.Sprintf("%s joined the room", username))
}

func (se *SystemEvents) Left(ctx context.Context, roomID domain.RoomID, username string) {
	se.append(ctx, roomID, fmt.Sprintf("%s left the room", username))
}

func (se *SystemEvents) HostChanged(ctx context.Context, roomID domain.RoomID, username string) {
	se.append(ctx, roomID, fmt.Sprintf("%s is now the host", username))
}

func (se *SystemEvents) StartedPlaying(ctx context.Context, roomID domain.RoomID, song *domain.Song) {
	se.append(ctx, roomID, fmt.Sprintf("started playing %s by %s", song.Title, song.Artist))
}

func (se *SystemEvents) QueueEmpty(ctx context.Context, roomID domain.RoomID) {
	se.append(ctx, roomID, "queue is empty")
}
