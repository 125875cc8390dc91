package domain

import (
	"errors"

	"github.com/google/uuid"
)

var ErrSongTitleEmpty = errors.New("song title empty")

type SongID string

// Song is opaque to the sync engine: metadata, duration and a playback
// URL supplied by the external search/upload collaborators.
type Song struct {
	ID         SongID  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Duration   float64 `json:"duration"`
	URL        string  `json:"url"`
	UploadedBy UserID  `json:"uploadedBy,omitempty"`
	PlayCount  int     `json:"playCount"`
}

func NewSong(title, artist, url string, duration float64, uploadedBy UserID) (*Song, error) {
	if title == "" {
		return nil, ErrSongTitleEmpty
	}
	return &Song{
		ID:         SongID(uuid.NewString()),
		Title:      title,
		Artist:     artist,
		Duration:   duration,
		URL:        url,
		UploadedBy: uploadedBy,
	}, nil
}
