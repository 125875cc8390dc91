package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

func (ctl *SignalWSController) handleMusicPlay(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type        string  `json:"type"`
		RoomID      string  `json:"roomId"`
		SongID      string  `json:"songId,omitempty"`
		CurrentTime float64 `json:"currentTime"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad play payload")
		ctl.sendError(conn, core.Invalidf("bad play payload"))
		return
	}
	if p.CurrentTime < 0 {
		ctl.sendError(conn, core.Invalidf("currentTime must not be negative"))
		return
	}
	if err := ctl.Orch.Play(ctx, sid, domain.RoomID(p.RoomID), domain.SongID(p.SongID), p.CurrentTime); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleMusicPause(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type        string  `json:"type"`
		RoomID      string  `json:"roomId"`
		CurrentTime float64 `json:"currentTime"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, core.Invalidf("bad pause payload"))
		return
	}
	if p.CurrentTime < 0 {
		ctl.sendError(conn, core.Invalidf("currentTime must not be negative"))
		return
	}
	if err := ctl.Orch.Pause(ctx, sid, domain.RoomID(p.RoomID), p.CurrentTime); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleMusicSeek(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type        string  `json:"type"`
		RoomID      string  `json:"roomId"`
		CurrentTime float64 `json:"currentTime"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, core.Invalidf("bad seek payload"))
		return
	}
	if p.CurrentTime < 0 {
		ctl.sendError(conn, core.Invalidf("currentTime must not be negative"))
		return
	}
	if err := ctl.Orch.Seek(ctx, sid, domain.RoomID(p.RoomID), p.CurrentTime); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleMusicNext(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, core.Invalidf("bad next payload"))
		return
	}
	if err := ctl.Orch.Next(ctx, sid, domain.RoomID(p.RoomID)); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleMusicVolume(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
		Volume *int   `json:"volume"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Volume == nil {
		ctl.sendError(conn, core.Invalidf("bad volume payload"))
		return
	}
	if err := ctl.Orch.Volume(ctx, sid, domain.RoomID(p.RoomID), *p.Volume); err != nil {
		ctl.sendError(conn, err)
	}
}
