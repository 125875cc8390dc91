package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/auxroom/auxroom/internal/app"
	"github.com/auxroom/auxroom/internal/app/orch"
	"github.com/auxroom/auxroom/internal/core"
	"github.com/auxroom/auxroom/internal/domain"
)

// Handlers is the REST collaborator boundary. It goes through the same
// orchestrator paths as the socket, so both surfaces observe identical
// room invariants.
type Handlers struct {
	Orch        *orch.Orchestrator
	ChatHistory int
}

func statusOf(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuthorization:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func sidOf(c *gin.Context) core.SessionID {
	return core.SessionID(c.GetString("client_token"))
}

type roomSummary struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	Private     bool            `json:"private"`
	MemberCount int             `json:"memberCount"`
	IsPlaying   bool            `json:"isPlaying"`
}

func (h *Handlers) ListRooms(c *gin.Context) {
	rooms, err := h.Orch.ListRooms(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]roomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomSummary{
			ID:          r.ID,
			Name:        r.Name,
			Private:     r.Private,
			MemberCount: len(r.Members),
			IsPlaying:   r.CurrentTrack.IsPlaying,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Username string `json:"username,omitempty"`
		Private  bool   `json:"private"`
		Passcode string `json:"passcode,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, core.Invalidf("bad request body"))
		return
	}
	sid := sidOf(c)
	if req.Username != "" {
		if err := h.Orch.Registry.UpdateUsername(sid, req.Username); err != nil {
			fail(c, core.Invalidf("invalid username"))
			return
		}
	}
	room, err := h.Orch.CreateRoom(c.Request.Context(), sid, domain.RoomName(req.Name), req.Private, req.Passcode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": app.NewRoomView(room)})
}

func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.Orch.Store.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": app.NewRoomView(room)})
}

func (h *Handlers) CloseRoom(c *gin.Context) {
	if err := h.Orch.CloseRoom(c.Request.Context(), sidOf(c), domain.RoomID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// JoinRoom is the membership-establishing REST call that precedes the
// socket-level join-room event.
func (h *Handlers) JoinRoom(c *gin.Context) {
	var req struct {
		Passcode string `json:"passcode,omitempty"`
		Username string `json:"username,omitempty"`
	}
	// Body is optional for public rooms.
	_ = c.ShouldBindJSON(&req)
	sid := sidOf(c)
	if req.Username != "" {
		if err := h.Orch.Registry.UpdateUsername(sid, req.Username); err != nil {
			fail(c, core.Invalidf("invalid username"))
			return
		}
	}
	roomID := domain.RoomID(c.Param("id"))
	if err := h.Orch.Join(c.Request.Context(), sid, roomID, req.Passcode); err != nil {
		fail(c, err)
		return
	}
	room, err := h.Orch.Store.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": app.NewRoomView(room)})
}

func (h *Handlers) RoomMessages(c *gin.Context) {
	limit := h.ChatHistory
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.Orch.RoomHistory(c.Request.Context(), domain.RoomID(c.Param("id")), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

func (h *Handlers) AddToQueue(c *gin.Context) {
	var req struct {
		SongID string `json:"songId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SongID == "" {
		fail(c, core.Invalidf("songId required"))
		return
	}
	user := h.Orch.Registry.GetOrCreateUser(sidOf(c))
	item, err := h.Orch.AddToQueue(c.Request.Context(), user.ID, domain.RoomID(c.Param("id")), domain.SongID(req.SongID))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (h *Handlers) RemoveFromQueue(c *gin.Context) {
	user := h.Orch.Registry.GetOrCreateUser(sidOf(c))
	err := h.Orch.RemoveFromQueue(c.Request.Context(), user.ID, domain.RoomID(c.Param("id")), domain.SongID(c.Param("songId")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (h *Handlers) RegisterSong(c *gin.Context) {
	var req struct {
		Title    string  `json:"title"`
		Artist   string  `json:"artist"`
		URL      string  `json:"url"`
		Duration float64 `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, core.Invalidf("bad request body"))
		return
	}
	user := h.Orch.Registry.GetOrCreateUser(sidOf(c))
	song, err := domain.NewSong(req.Title, req.Artist, req.URL, req.Duration, user.ID)
	if err != nil {
		fail(c, core.Invalidf("%v", err))
		return
	}
	if err := h.Orch.RegisterSong(c.Request.Context(), song); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"song": song})
}

func (h *Handlers) GetSong(c *gin.Context) {
	song, err := h.Orch.Store.GetSong(c.Request.Context(), domain.SongID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"song": song})
}
