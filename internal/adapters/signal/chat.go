package signal

import (
	"context"
	"encoding/json"

	"github.com/auxroom/auxroom/internal/core"
)

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, core.Invalidf("bad message payload"))
		return
	}
	if err := ctl.Orch.SendMessage(ctx, sid, p.Content); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleAddReaction(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p struct {
		Type      string `json:"type"`
		MessageID string `json:"messageId"`
		Reaction  string `json:"reaction"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, core.Invalidf("bad reaction payload"))
		return
	}
	if err := ctl.Orch.AddReaction(sid, p.MessageID, p.Reaction); err != nil {
		ctl.sendError(conn, err)
	}
}
