package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		Passcode string `json:"passcode,omitempty"`
		Name     string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, core.Invalidf("bad join payload"))
		return
	}
	if p.RoomID == "" {
		ctl.sendError(conn, core.Invalidf("roomId required"))
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
			ctl.sendError(conn, core.Invalidf("invalid name"))
			return
		}
	}

	// Already bound elsewhere: leave the old room first.
	if current, _, ok := ctl.Orch.Registry.RoomOf(sid); ok && current != domain.RoomID(p.RoomID) {
		if err := ctl.Orch.Leave(ctx, sid); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("implicit leave failed")
		}
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, domain.RoomID(p.RoomID), p.Passcode); err != nil {
		ctl.sendError(conn, err)
	}
}

// handleLeaveRoom leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeaveRoom(ctx context.Context, sid core.SessionID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	if err := ctl.Orch.Leave(ctx, sid); err != nil {
		ctl.sendError(conn, err)
	}
}
