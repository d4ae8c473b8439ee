package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagebeat/musicroom/internal/v1/coordinator"
	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/metrics"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"github.com/stagebeat/musicroom/internal/v1/wire"
	"go.uber.org/zap"
)

// wsConnection is the subset of *websocket.Conn the client needs; tests
// substitute a fake that satisfies this without a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client represents a single connection into the coordinator. It owns the
// websocket pumps and translates wire.Message envelopes to and from
// coordinator operations.
type Client struct {
	conn   wsConnection
	coord  *coordinator.Coordinator
	connID types.ConnID
	userID types.UserID

	rateLimitEnabled bool

	send chan []byte
	done chan struct{}
}

func newClient(conn wsConnection, coord *coordinator.Coordinator, connID types.ConnID, userID types.UserID, rateLimitEnabled bool) *Client {
	return &Client{
		conn:             conn,
		coord:            coord,
		connID:           connID,
		userID:           userID,
		rateLimitEnabled: rateLimitEnabled,
		send:             make(chan []byte, 256),
		done:             make(chan struct{}),
	}
}

// reply is the coordinator.ReplyFunc this client hands to every coordinator
// call it makes: it encodes the event and queues it for delivery on its own
// connection, regardless of channel subscription state.
func (c *Client) reply(event string, payload any) {
	data, err := wire.Encode(event, payload)
	if err != nil {
		logging.Error(context.Background(), "failed to encode outbound message", zap.Error(err), zap.String("event", event))
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "client send buffer full, dropping message", zap.String("conn_id", string(c.connID)), zap.String("event", event))
	}
}

// readPump decodes inbound wire.Message envelopes and dispatches them to
// the coordinator. It runs until the connection errors or closes.
func (c *Client) readPump() {
	defer func() {
		c.coord.ConnectionLost(context.Background(), c.connID)
		c.conn.Close()
		close(c.done)
		metrics.DecSession()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := wire.Decode(data)
		if err != nil {
			logging.Warn(context.Background(), "failed to decode inbound message", zap.Error(err), zap.String("conn_id", string(c.connID)))
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg wire.Message) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "recovered from panic while handling inbound event", zap.Any("panic", r), zap.String("event", msg.Event), zap.Stack("stack"))
		}
	}()

	switch msg.Event {
	case "create_room":
		var req coordinator.CreateRoomRequest
		if err := msg.DecodePayload(&req); err != nil {
			c.reply("error", map[string]any{"message": "invalid create_room payload"})
			return
		}
		req.UserID = c.userID
		c.coord.CreateRoom(ctx, c.connID, req, c.reply)

	case "join_room":
		var req coordinator.JoinRoomRequest
		if err := msg.DecodePayload(&req); err != nil {
			c.reply("error", map[string]any{"message": "invalid join_room payload"})
			return
		}
		req.UserID = c.userID
		c.coord.JoinRoom(ctx, c.connID, req, c.reply)

	case "leave_room":
		c.coord.LeaveRoom(ctx, c.connID, true, c.reply)

	case "update_metronome":
		var req coordinator.UpdateMetronomeRequest
		if err := msg.DecodePayload(&req); err != nil {
			c.reply("error", map[string]any{"message": "invalid update_metronome payload"})
			return
		}
		c.coord.UpdateMetronome(ctx, c.connID, req)

	case "request_metronome_state":
		c.coord.RequestMetronomeState(ctx, c.connID, c.reply)

	case "approve_member":
		var req coordinator.ApproveMemberRequest
		if err := msg.DecodePayload(&req); err != nil {
			c.reply("error", map[string]any{"message": "invalid approve_member payload"})
			return
		}
		c.coord.ApproveMember(ctx, c.connID, req)

	case "reject_member":
		var req coordinator.RejectMemberRequest
		if err := msg.DecodePayload(&req); err != nil {
			c.reply("error", map[string]any{"message": "invalid reject_member payload"})
			return
		}
		c.coord.RejectMember(ctx, c.connID, req)

	default:
		logging.Warn(ctx, "unrecognized inbound event", zap.String("event", msg.Event))
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	writeWait := 10 * time.Second

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Error(context.Background(), "error writing message", zap.Error(err), zap.String("conn_id", string(c.connID)))
				return
			}
		}
	}
}

// Disconnect closes the underlying connection, unblocking readPump.
func (c *Client) Disconnect() {
	c.conn.Close()
}
