// Package types defines the shared domain types and the interfaces that let
// the coordinator depend on abstractions instead of concrete structs, so
// room store, session registry, channel registry, and metronome engine can
// each evolve independently of one another and of the transport layer.
package types

import (
	"context"
	"time"
)

// --- Core Domain Types ---

// Role defines the membership role a user holds in a room.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleBandMember Role = "band_member"
	RoleAudience   Role = "audience"
)

// UserID is an opaque user identifier, supplied by the caller at join time.
type UserID string

// RoomID is an opaque room identifier, allocated by the room store.
type RoomID string

// ConnID identifies a single transport connection (one per live session).
type ConnID string

// DisplayName is the human-readable name shown for a member.
type DisplayName string

// Member is a snapshot of a single user's standing in a room. Members are
// replaced wholesale (never mutated in place) when anything about them
// changes, so that a previously-handed-out snapshot never silently changes
// underneath its holder.
type Member struct {
	UserID          UserID      `json:"userId"`
	DisplayName     DisplayName `json:"displayName"`
	Role            Role        `json:"role"`
	IsReady         bool        `json:"isReady"`
	CurrentInstrument string    `json:"currentInstrument,omitempty"`
	CurrentCategory   string    `json:"currentCategory,omitempty"`
}

// MetronomeState is the persisted (non-runtime) metronome configuration for
// a room. The scheduler's runtime bookkeeping (next expected tick, drift
// stats) is held separately by the metronome engine, not here.
type MetronomeState struct {
	BPM              int   `json:"bpm"`
	LastTickTimestamp int64 `json:"lastTickTimestamp"`
}

// Room is a snapshot of a room's membership and configuration.
type Room struct {
	ID              RoomID            `json:"id"`
	Name            string            `json:"name"`
	Owner           UserID            `json:"owner"`
	Users           map[UserID]Member `json:"users"`
	PendingMembers  map[UserID]Member `json:"pendingMembers"`
	IsPrivate       bool              `json:"isPrivate"`
	IsHidden        bool              `json:"isHidden"`
	CreatedAt       time.Time         `json:"createdAt"`
	Metronome       MetronomeState    `json:"metronome"`
}

// Session binds a live transport connection to the (room, user) pair it
// represents. At most one session is live per (userId, roomId) at a time.
type Session struct {
	ConnID    ConnID
	UserID    UserID
	RoomID    RoomID
	CreatedAt time.Time
}

// DriftStats summarizes a room's metronome scheduler jitter since it started.
type DriftStats struct {
	MaxDriftMs float64
	AvgDriftMs float64
	TickCount  int64
}

// --- Shared Interfaces ---

// Broadcaster is the minimal cross-process fan-out surface the coordinator
// needs for the global lobby-monitor channel. Implemented by
// internal/v1/bus.Service; a nil Broadcaster is valid and means
// single-instance mode.
type Broadcaster interface {
	PublishGlobal(ctx context.Context, event string, payload any) error
}

// RoomStore is the in-memory room/membership/metronome-config store.
type RoomStore interface {
	CreateRoom(ctx context.Context, name, username string, userID UserID, isPrivate, isHidden bool) (Room, Member, error)
	GetRoom(ctx context.Context, roomID RoomID) (Room, bool)
	AddMember(ctx context.Context, roomID RoomID, member Member) error
	RemoveMember(ctx context.Context, roomID RoomID, userID UserID, intentional bool) (Member, error)
	TransferOwnership(ctx context.Context, roomID RoomID, newOwnerID UserID) (newOwner, oldOwner Member, err error)
	ShouldClose(ctx context.Context, roomID RoomID) bool
	AnyMember(ctx context.Context, roomID RoomID) (Member, bool)
	UpdateMetronomeBPM(ctx context.Context, roomID RoomID, bpm int) (Room, error)
	GetMetronomeState(ctx context.Context, roomID RoomID) (MetronomeState, bool)
	AddPending(ctx context.Context, roomID RoomID, member Member) error
	ApprovePending(ctx context.Context, roomID RoomID, userID UserID) (Member, error)
	RejectPending(ctx context.Context, roomID RoomID, userID UserID) (Member, error)
	DeleteRoom(ctx context.Context, roomID RoomID)
}

// SessionRegistry tracks live connections, reconnection grace windows, and
// intentional-leave markers.
type SessionRegistry interface {
	SetSession(roomID RoomID, connID ConnID, userID UserID) (staleConnID ConnID, hadStale bool)
	GetSession(connID ConnID) (Session, bool)
	RemoveSession(connID ConnID)

	PutGrace(roomID RoomID, userID UserID, snapshot Member, ttl time.Duration, onExpire func())
	IsInGrace(userID UserID, roomID RoomID) bool
	PopGrace(userID UserID, roomID RoomID) (Member, bool)

	MarkIntentionallyLeft(userID UserID, roomID RoomID, ttl time.Duration)
	HasIntentionallyLeft(userID UserID, roomID RoomID) bool
	ClearIntentionallyLeft(userID UserID, roomID RoomID)
}

// Channel is a single broadcast channel (room or approval) with currently
// attached subscribers.
type Channel interface {
	Path() string
	Subscribe(connID ConnID, send func(event string, payload any))
	Unsubscribe(connID ConnID)
}

// ChannelRegistry creates, looks up, and destroys per-room broadcast
// channels.
type ChannelRegistry interface {
	GetOrCreateRoomChannel(roomID RoomID) (Channel, error)
	GetOrCreateApprovalChannel(roomID RoomID) Channel
	DestroyRoomChannel(roomID RoomID)
	DestroyApprovalChannel(roomID RoomID)
	Broadcast(channel Channel, event string, payload any)
	SendTo(channel Channel, connID ConnID, event string, payload any)
}

// MetronomeEngine runs one drift-corrected tick scheduler per active room.
type MetronomeEngine interface {
	Initialize(roomID RoomID, channel Channel, bpm int)
	UpdateTempo(roomID RoomID, newBPM int)
	Cleanup(roomID RoomID)
	DriftStats(roomID RoomID) (DriftStats, bool)
}
