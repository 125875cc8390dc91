// Package store persists room, song and chat-history documents in a
// PebbleDB key-value store. Rooms and songs are whole JSON documents;
// chat entries are an append-only log keyed by per-room sequence
// numbers so history reads back in insertion order.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

const (
	roomPrefix = "room:"
	songPrefix = "song:"
	chatPrefix = "chat:"
)

type Store struct {
	db *pebble.DB

	// Serializes read-check-write cycles of PutRoom and chat sequence
	// allocation. Pebble itself has no multi-key transactions.
	mu      sync.Mutex
	chatSeq map[domain.RoomID]uint64
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	s := &Store{db: db, chatSeq: make(map[domain.RoomID]uint64)}
	log.Info().Str("module", "store").Str("dir", dir).Msg("store opened")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func roomKey(id domain.RoomID) []byte { return []byte(roomPrefix + string(id)) }
func songKey(id domain.SongID) []byte { return []byte(songPrefix + string(id)) }

func chatKey(roomID domain.RoomID, seq uint64) []byte {
	key := make([]byte, 0, len(chatPrefix)+len(roomID)+9)
	key = append(key, chatPrefix...)
	key = append(key, roomID...)
	key = append(key, ':')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func (s *Store) getJSON(key []byte, out any) error {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return core.NotFoundf("%s not found", string(key))
		}
		return core.Transientf("store read: %v", err)
	}
	defer func() { _ = closer.Close() }()
	if err := json.Unmarshal(val, out); err != nil {
		return core.Transientf("store decode: %v", err)
	}
	return nil
}

func (s *Store) setJSON(key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return core.Transientf("store encode: %v", err)
	}
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return core.Transientf("store write: %v", err)
	}
	return nil
}

func (s *Store) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing domain.Room
	if err := s.getJSON(roomKey(room.ID), &existing); err == nil {
		return core.Conflictf("room %s already exists", room.ID)
	} else if !core.IsKind(err, core.KindNotFound) {
		return err
	}
	room.Version = 1
	return s.setJSON(roomKey(room.ID), room)
}

func (s *Store) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	var room domain.Room
	if err := s.getJSON(roomKey(id), &room); err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.NotFoundf("room %s not found", id)
		}
		return nil, err
	}
	return &room, nil
}

// PutRoom writes the document back only if nobody else has written it
// since the caller's read. On success the stored version is bumped.
func (s *Store) PutRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored domain.Room
	if err := s.getJSON(roomKey(room.ID), &stored); err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return core.NotFoundf("room %s not found", room.ID)
		}
		return err
	}
	if stored.Version != room.Version {
		return core.Conflictf("room %s modified concurrently (have v%d, want v%d)",
			room.ID, stored.Version, room.Version)
	}
	room.Version++
	if err := s.setJSON(roomKey(room.ID), room); err != nil {
		room.Version--
		return err
	}
	return nil
}

func (s *Store) PutSong(_ context.Context, song *domain.Song) error {
	return s.setJSON(songKey(song.ID), song)
}

func (s *Store) GetSong(_ context.Context, id domain.SongID) (*domain.Song, error) {
	var song domain.Song
	if err := s.getJSON(songKey(id), &song); err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.NotFoundf("song %s not found", id)
		}
		return nil, err
	}
	return &song, nil
}

func (s *Store) AppendChat(_ context.Context, entry core.ChatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.chatSeq[entry.RoomID]
	if !ok {
		seq = s.lastChatSeqLocked(entry.RoomID) + 1
	}
	s.chatSeq[entry.RoomID] = seq + 1
	return s.setJSON(chatKey(entry.RoomID, seq), entry)
}

// lastChatSeqLocked discovers the highest used sequence by reading the
// last key of the room's chat range. Zero when the log is empty.
func (s *Store) lastChatSeqLocked(roomID domain.RoomID) uint64 {
	lower, upper := chatBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0
	}
	defer func() { _ = it.Close() }()
	if !it.Last() {
		return 0
	}
	key := it.Key()
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func chatBounds(roomID domain.RoomID) (lower, upper []byte) {
	lower = chatKey(roomID, 0)
	upper = chatKey(roomID, ^uint64(0))
	return lower, upper
}

func (s *Store) RecentChat(_ context.Context, roomID domain.RoomID, limit int) ([]core.ChatEntry, error) {
	lower, upper := chatBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, core.Transientf("store iter: %v", err)
	}
	defer func() { _ = it.Close() }()

	out := make([]core.ChatEntry, 0, 64)
	if limit <= 0 {
		for it.First(); it.Valid(); it.Next() {
			var e core.ChatEntry
			if err := json.Unmarshal(it.Value(), &e); err == nil {
				out = append(out, e)
			}
		}
		return out, nil
	}
	// Walk backwards, then reverse into chronological order.
	for ok := it.Last(); ok && len(out) < limit; ok = it.Prev() {
		var e core.ChatEntry
		if err := json.Unmarshal(it.Value(), &e); err == nil {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) ListRooms(_ context.Context) ([]*domain.Room, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(roomPrefix),
		UpperBound: []byte(roomPrefix + "\xff"),
	})
	if err != nil {
		return nil, core.Transientf("store iter: %v", err)
	}
	defer func() { _ = it.Close() }()
	out := make([]*domain.Room, 0, 16)
	for it.First(); it.Valid(); it.Next() {
		var room domain.Room
		if err := json.Unmarshal(it.Value(), &room); err == nil {
			out = append(out, &room)
		}
	}
	return out, nil
}
