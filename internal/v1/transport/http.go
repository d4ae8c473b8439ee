package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stagebeat/musicroom/internal/v1/auth"
	"github.com/stagebeat/musicroom/internal/v1/coordinator"
	"github.com/stagebeat/musicroom/internal/v1/types"
)

// createRoomHTTPRequest is the POST /rooms request body.
type createRoomHTTPRequest struct {
	Name      string `json:"name" binding:"required"`
	Username  string `json:"username" binding:"required"`
	IsPrivate bool   `json:"isPrivate"`
	IsHidden  bool   `json:"isHidden"`
}

// collectReply returns a coordinator.ReplyFunc that records the last
// event/payload pair it was handed, for HTTP handlers that need a
// synchronous result out of an inherently asynchronous coordinator call.
func collectReply() (reply coordinator.ReplyFunc, get func() (string, any)) {
	var event string
	var payload any
	reply = func(e string, p any) {
		event = e
		payload = p
	}
	get = func() (string, any) {
		return event, payload
	}
	return reply, get
}

// CreateRoomHTTP wraps coordinator.CreateRoom for the POST /rooms endpoint.
// It gives the request its own throwaway connection id: the HTTP surface
// never subscribes to the room channel, it only needs the single
// room_created (or error) reply the coordinator call produces.
func (h *Hub) CreateRoomHTTP(c *gin.Context) {
	var req createRoomHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rawClaims, ok := c.Get("claims")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
		return
	}
	userClaims, ok := rawClaims.(*auth.CustomClaims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	userID := types.UserID(userClaims.Subject)

	// connID only lives long enough to read back the room_created reply;
	// the underlying channel subscription it leaves behind goes nowhere
	// useful until the caller separately opens a websocket connection.
	connID := types.ConnID(uuid.NewString())
	reply, get := collectReply()
	h.coord.CreateRoom(c.Request.Context(), connID, coordinator.CreateRoomRequest{
		Name:      req.Name,
		Username:  req.Username,
		UserID:    userID,
		IsPrivate: req.IsPrivate,
		IsHidden:  req.IsHidden,
	}, reply)

	event, payload := get()
	if event == "error" {
		c.JSON(http.StatusBadRequest, payload)
		return
	}
	c.JSON(http.StatusCreated, payload)
}

// LeaveRoomHTTP wraps coordinator.LeaveRoom for the POST /rooms/:roomId/leave
// endpoint. The roomId path parameter is informational only -- LeaveRoom
// resolves room membership from the connection id's session, so an HTTP
// caller with no live session is simply a no-op, which the handler reports
// as 404 since the effect ("you have left") never occurred.
func (h *Hub) LeaveRoomHTTP(c *gin.Context) {
	connIDParam := c.GetHeader("X-Connection-Id")
	if connIDParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Connection-Id header"})
		return
	}

	reply, get := collectReply()
	h.coord.LeaveRoom(c.Request.Context(), types.ConnID(connIDParam), true, reply)

	event, payload := get()
	if event != "leave_confirmed" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session for this connection"})
		return
	}
	c.JSON(http.StatusOK, payload)
}
