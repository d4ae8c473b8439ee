// Package channelregistry manages per-room broadcast channels: lazily
// created, fanned-out to on a best-effort basis, and destroyed together
// with the room they belong to.
package channelregistry

import (
	"fmt"
	"sync"

	"github.com/stagebeat/musicroom/internal/v1/logging"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"go.uber.org/zap"
)

// subscriber is a single attached connection and its send func.
type subscriber struct {
	send func(event string, payload any)
}

// channel is the concrete, in-process fan-out object behind types.Channel.
// It is not a Go chan: it is a registered set of subscriber callbacks,
// fanned out under a lock the same way a per-room client map with a
// broadcast helper would be.
type channel struct {
	mu   sync.Mutex
	path string
	subs map[types.ConnID]*subscriber
}

func newChannel(path string) *channel {
	return &channel{path: path, subs: make(map[types.ConnID]*subscriber)}
}

func (c *channel) Path() string { return c.path }

func (c *channel) Subscribe(connID types.ConnID, send func(event string, payload any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[connID] = &subscriber{send: send}
}

func (c *channel) Unsubscribe(connID types.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, connID)
}

// Registry is the concrete implementation of types.ChannelRegistry.
type Registry struct {
	mu         sync.Mutex
	room       map[types.RoomID]*channel
	approval   map[types.RoomID]*channel
}

// New creates an empty channel registry.
func New() *Registry {
	return &Registry{
		room:     make(map[types.RoomID]*channel),
		approval: make(map[types.RoomID]*channel),
	}
}

// GetOrCreateRoomChannel returns the room channel, creating it if this is
// the first time it has been needed. Creation here never actually fails
// (it is pure in-process bookkeeping), but the error return is kept so a
// future channel-creation backend (e.g. one backed by an external bus) can
// surface a failure without changing the interface; callers must still
// apply state mutations they had already committed even if this errors.
func (r *Registry) GetOrCreateRoomChannel(roomID types.RoomID) (types.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.room[roomID]
	if !ok {
		ch = newChannel(fmt.Sprintf("/room/%s", roomID))
		r.room[roomID] = ch
	}
	return ch, nil
}

// GetOrCreateApprovalChannel returns the approval channel for a private room.
func (r *Registry) GetOrCreateApprovalChannel(roomID types.RoomID) types.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.approval[roomID]
	if !ok {
		ch = newChannel(fmt.Sprintf("/approval/%s", roomID))
		r.approval[roomID] = ch
	}
	return ch
}

// DestroyRoomChannel detaches all subscribers and drops the room channel.
func (r *Registry) DestroyRoomChannel(roomID types.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.room[roomID]; ok {
		ch.mu.Lock()
		ch.subs = make(map[types.ConnID]*subscriber)
		ch.mu.Unlock()
	}
	delete(r.room, roomID)
}

// DestroyApprovalChannel detaches all subscribers and drops the approval channel.
func (r *Registry) DestroyApprovalChannel(roomID types.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.approval[roomID]; ok {
		ch.mu.Lock()
		ch.subs = make(map[types.ConnID]*subscriber)
		ch.mu.Unlock()
	}
	delete(r.approval, roomID)
}

// Broadcast fans event out to every subscriber attached to channel. Delivery
// is best-effort and FIFO per subscriber, with no cross-subscriber ordering
// guarantee and no acknowledgment.
func (r *Registry) Broadcast(ch types.Channel, event string, payload any) {
	c, ok := ch.(*channel)
	if !ok {
		return
	}

	c.mu.Lock()
	sends := make([]func(string, any), 0, len(c.subs))
	for _, sub := range c.subs {
		sends = append(sends, sub.send)
	}
	c.mu.Unlock()

	for _, send := range sends {
		send(event, payload)
	}
}

// SendTo delivers event only to connID, if it is currently subscribed to
// channel. Used for caller-only events like approval_granted/denied.
func (r *Registry) SendTo(ch types.Channel, connID types.ConnID, event string, payload any) {
	c, ok := ch.(*channel)
	if !ok {
		return
	}

	c.mu.Lock()
	sub, exists := c.subs[connID]
	c.mu.Unlock()

	if !exists {
		logging.Warn(nil, "sendTo: connection not subscribed", zap.String("channel", c.path), zap.String("conn_id", string(connID)))
		return
	}
	sub.send(event, payload)
}
