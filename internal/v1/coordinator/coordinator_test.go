package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stagebeat/musicroom/internal/v1/channelregistry"
	"github.com/stagebeat/musicroom/internal/v1/roomstore"
	"github.com/stagebeat/musicroom/internal/v1/sessionregistry"
	"github.com/stagebeat/musicroom/internal/v1/types"
)

// fakeMetronome is a no-op types.MetronomeEngine recorder: tests here care
// about membership and channel fan-out, not drift-correction timing, which
// the metronome package already covers on its own.
type fakeMetronome struct {
	mu          sync.Mutex
	initialized map[types.RoomID]int
	tempos      map[types.RoomID]int
	cleaned     map[types.RoomID]bool
}

func newFakeMetronome() *fakeMetronome {
	return &fakeMetronome{
		initialized: make(map[types.RoomID]int),
		tempos:      make(map[types.RoomID]int),
		cleaned:     make(map[types.RoomID]bool),
	}
}

func (f *fakeMetronome) Initialize(roomID types.RoomID, channel types.Channel, bpm int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized[roomID]++
	f.tempos[roomID] = bpm
}

func (f *fakeMetronome) UpdateTempo(roomID types.RoomID, newBPM int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tempos[roomID] = newBPM
}

func (f *fakeMetronome) Cleanup(roomID types.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned[roomID] = true
}

func (f *fakeMetronome) DriftStats(roomID types.RoomID) (types.DriftStats, bool) {
	return types.DriftStats{}, false
}

// recordedEvent captures one reply/broadcast delivery for assertions.
type recordedEvent struct {
	event   string
	payload any
}

type harness struct {
	t         *testing.T
	store     *roomstore.Store
	sessions  *sessionregistry.Registry
	channels  *channelregistry.Registry
	metronome *fakeMetronome
	coord     *Coordinator

	mu      sync.Mutex
	replies map[types.ConnID][]recordedEvent
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:         t,
		store:     roomstore.NewStore(1, 1000, 90),
		sessions:  sessionregistry.New(),
		channels:  channelregistry.New(),
		metronome: newFakeMetronome(),
		replies:   make(map[types.ConnID][]recordedEvent),
	}
	h.coord = New(h.store, h.sessions, h.channels, h.metronome, nil, Config{
		GracePeriod:          50 * time.Millisecond,
		IntentionallyLeftTTL: 50 * time.Millisecond,
		BPMMin:               1,
		BPMMax:               1000,
		BPMDefault:           90,
		MaxParticipants:      10,
	})
	return h
}

// reply returns a ReplyFunc that records events under connID, for use as
// the direct-to-caller channel in coordinator calls.
func (h *harness) reply(connID types.ConnID) ReplyFunc {
	return func(event string, payload any) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.replies[connID] = append(h.replies[connID], recordedEvent{event: event, payload: payload})
	}
}

func (h *harness) eventsFor(connID types.ConnID) []recordedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]recordedEvent, len(h.replies[connID]))
	copy(out, h.replies[connID])
	return out
}

func (h *harness) hasEvent(connID types.ConnID, event string) bool {
	for _, e := range h.eventsFor(connID) {
		if e.event == event {
			return true
		}
	}
	return false
}

// createRoom runs CreateRoom for connID with the harness's recording reply
// func, so the caller's replies and room-channel events land in its record.
func (h *harness) createRoom(connID types.ConnID, name, username string, userID types.UserID, isPrivate bool) {
	h.coord.CreateRoom(context.Background(), connID, CreateRoomRequest{
		Name:     name,
		Username: username,
		UserID:   userID,
		IsPrivate: isPrivate,
	}, h.reply(connID))
}

func TestCreateRoomEmitsRoomCreatedToCallerOnly(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Jam Room", "alice", "u1", false)

	if !h.hasEvent("c1", "room_created") {
		t.Fatalf("expected room_created for creator")
	}
}

func TestJoinRoomOrderingGuarantee(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Jam Room", "alice", "u1", false)

	room, ok := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))
	if !ok {
		t.Fatalf("room not found after creation")
	}

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID:   room.ID,
		Username: "bob",
		UserID:   "u2",
		Role:     types.RoleBandMember,
	}, h.reply("c2"))

	events := h.eventsFor("c2")
	if len(events) < 2 || events[0].event != "room_joined" {
		t.Fatalf("expected room_joined first for joiner, got %+v", events)
	}

	foundStateUpdated := false
	for _, e := range events {
		if e.event == "room_state_updated" {
			foundStateUpdated = true
		}
	}
	if !foundStateUpdated {
		t.Fatalf("expected room_state_updated to reach the joiner too")
	}
}

func TestPrivateRoomBandMemberRedirectsToApproval(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Private Room", "alice", "u1", true)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID:   room.ID,
		Username: "bob",
		UserID:   "u2",
		Role:     types.RoleBandMember,
	}, h.reply("c2"))

	if !h.hasEvent("c2", "redirect_to_approval") {
		t.Fatalf("expected redirect_to_approval, got %+v", h.eventsFor("c2"))
	}

	room, _ = h.store.GetRoom(context.Background(), room.ID)
	if _, pending := room.PendingMembers["u2"]; !pending {
		t.Fatalf("expected u2 registered as pending")
	}
}

func TestApproveMemberAdmitsApplicantAndNotifiesOnlyThem(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Private Room", "alice", "u1", true)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID:   room.ID,
		Username: "bob",
		UserID:   "u2",
		Role:     types.RoleBandMember,
	}, h.reply("c2"))

	h.coord.ApproveMember(context.Background(), "c1", ApproveMemberRequest{TargetUserID: "u2"})

	if !h.hasEvent("c2", "approval_granted") {
		t.Fatalf("expected approval_granted delivered to applicant's own connection, got %+v", h.eventsFor("c2"))
	}

	room, _ = h.store.GetRoom(context.Background(), room.ID)
	if _, isMember := room.Users["u2"]; !isMember {
		t.Fatalf("expected u2 promoted to membership")
	}
	if _, stillPending := room.PendingMembers["u2"]; stillPending {
		t.Fatalf("expected u2 removed from pending")
	}
}

func TestRejectMemberNeverAdmitsApplicant(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Private Room", "alice", "u1", true)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID: room.ID, Username: "bob", UserID: "u2", Role: types.RoleBandMember,
	}, h.reply("c2"))
	h.coord.RejectMember(context.Background(), "c1", RejectMemberRequest{TargetUserID: "u2"})

	if !h.hasEvent("c2", "approval_denied") {
		t.Fatalf("expected approval_denied, got %+v", h.eventsFor("c2"))
	}
	room, _ = h.store.GetRoom(context.Background(), room.ID)
	if _, isMember := room.Users["u2"]; isMember {
		t.Fatalf("rejected applicant must never be admitted")
	}
}

func TestLastMemberLeavingClosesRoom(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Solo Room", "alice", "u1", false)
	roomID := roomIDFromCreated(h, "c1")

	h.coord.LeaveRoom(context.Background(), "c1", true, h.reply("c1"))

	if !h.hasEvent("c1", "leave_confirmed") {
		t.Fatalf("expected leave_confirmed to departing caller")
	}
	if _, ok := h.store.GetRoom(context.Background(), roomID); ok {
		t.Fatalf("expected room deleted once empty")
	}
	if !h.metronome.cleaned[roomID] {
		t.Fatalf("expected metronome cleanup on room close")
	}
}

func TestIntentionalOwnerLeaveTransfersOwnership(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Band Room", "alice", "u1", false)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID: room.ID, Username: "bob", UserID: "u2", Role: types.RoleBandMember,
	}, h.reply("c2"))

	h.coord.LeaveRoom(context.Background(), "c1", true, h.reply("c1"))

	room, ok := h.store.GetRoom(context.Background(), room.ID)
	if !ok {
		t.Fatalf("expected room to survive transfer")
	}
	if room.Owner != "u2" {
		t.Fatalf("expected u2 to become owner, got %v", room.Owner)
	}
}

func TestUnintentionalOwnerLeaveGivesGraceBeforeTransfer(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Band Room", "alice", "u1", false)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID: room.ID, Username: "bob", UserID: "u2", Role: types.RoleBandMember,
	}, h.reply("c2"))

	h.coord.ConnectionLost(context.Background(), "c1")

	room, ok := h.store.GetRoom(context.Background(), room.ID)
	if !ok {
		t.Fatalf("expected room to still exist immediately after disconnect")
	}
	if room.Owner != "u1" {
		t.Fatalf("expected no immediate ownership transfer, got owner %v", room.Owner)
	}

	time.Sleep(150 * time.Millisecond)

	room, ok = h.store.GetRoom(context.Background(), room.ID)
	if !ok {
		t.Fatalf("expected room to survive past grace with a remaining member")
	}
	if room.Owner != "u2" {
		t.Fatalf("expected ownership transferred to u2 after grace elapsed, got %v", room.Owner)
	}
}

func TestSoleOwnerDisconnectSurvivesEmptyDuringGrace(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Solo Room", "alice", "u1", false)
	roomID := roomIDFromCreated(h, "c1")

	h.coord.ConnectionLost(context.Background(), "c1")

	if _, ok := h.store.GetRoom(context.Background(), roomID); !ok {
		t.Fatalf("expected empty room to survive during grace window (TP-7)")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := h.store.GetRoom(context.Background(), roomID); ok {
		t.Fatalf("expected room closed once grace elapsed with nobody left")
	}
}

func TestOwnerReconnectDuringGraceSuppressesTransfer(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Band Room", "alice", "u1", false)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID: room.ID, Username: "bob", UserID: "u2", Role: types.RoleBandMember,
	}, h.reply("c2"))

	h.coord.ConnectionLost(context.Background(), "c1")

	h.coord.JoinRoom(context.Background(), "c3", JoinRoomRequest{
		RoomID: room.ID, Username: "alice", UserID: "u1", Role: types.RoleBandMember,
	}, h.reply("c3"))

	time.Sleep(150 * time.Millisecond)

	room, ok := h.store.GetRoom(context.Background(), room.ID)
	if !ok {
		t.Fatalf("expected room to still exist")
	}
	if room.Owner != "u1" {
		t.Fatalf("expected u1 to remain owner after reconnecting within grace, got %v", room.Owner)
	}
}

func TestUpdateMetronomeRejectsAudience(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Band Room", "alice", "u1", false)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	h.coord.JoinRoom(context.Background(), "c2", JoinRoomRequest{
		RoomID: room.ID, Username: "listener", UserID: "u2", Role: types.RoleAudience,
	}, h.reply("c2"))

	h.coord.UpdateMetronome(context.Background(), "c2", UpdateMetronomeRequest{BPM: 140})

	state, _ := h.store.GetMetronomeState(context.Background(), room.ID)
	if state.BPM != 90 {
		t.Fatalf("expected audience update_metronome to be a no-op, got bpm %d", state.BPM)
	}
}

func TestUpdateMetronomeByOwnerBroadcastsAndUpdatesEngine(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Band Room", "alice", "u1", false)
	roomID := roomIDFromCreated(h, "c1")

	h.coord.UpdateMetronome(context.Background(), "c1", UpdateMetronomeRequest{BPM: 140})

	state, _ := h.store.GetMetronomeState(context.Background(), roomID)
	if state.BPM != 140 {
		t.Fatalf("expected bpm updated to 140, got %d", state.BPM)
	}
	if h.metronome.tempos[roomID] != 140 {
		t.Fatalf("expected metronome engine tempo updated, got %d", h.metronome.tempos[roomID])
	}
	if !h.hasEvent("c1", "metronome_updated") {
		t.Fatalf("expected metronome_updated broadcast to room members")
	}
}

func TestRequestMetronomeStateRepliesOnlyToCaller(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Band Room", "alice", "u1", false)

	h.coord.RequestMetronomeState(context.Background(), "c1", h.reply("c1"))

	if !h.hasEvent("c1", "metronome_state") {
		t.Fatalf("expected metronome_state reply to caller")
	}
}

func TestJoinRoomRejectsOnceCapacityReached(t *testing.T) {
	h := newHarness(t)
	h.createRoom("c1", "Packed Room", "alice", "u1", false)
	room, _ := h.store.GetRoom(context.Background(), roomIDFromCreated(h, "c1"))

	// Owner already counts toward the cap of 10, so 9 more joins fill the room.
	for i := 2; i <= 10; i++ {
		connID := types.ConnID(fmt.Sprintf("c%d", i))
		userID := types.UserID(fmt.Sprintf("u%d", i))
		h.coord.JoinRoom(context.Background(), connID, JoinRoomRequest{
			RoomID:   room.ID,
			Username: fmt.Sprintf("user%d", i),
			UserID:   userID,
			Role:     types.RoleAudience,
		}, h.reply(connID))
		if !h.hasEvent(connID, "room_joined") {
			t.Fatalf("expected room_joined for %s while under capacity, got %+v", connID, h.eventsFor(connID))
		}
	}

	room, _ = h.store.GetRoom(context.Background(), room.ID)
	if len(room.Users) != 10 {
		t.Fatalf("expected room full at 10 members, got %d", len(room.Users))
	}

	h.coord.JoinRoom(context.Background(), "c11", JoinRoomRequest{
		RoomID:   room.ID,
		Username: "overflow",
		UserID:   "u11",
		Role:     types.RoleAudience,
	}, h.reply("c11"))

	if !h.hasEvent("c11", "error") {
		t.Fatalf("expected error reply once room is full, got %+v", h.eventsFor("c11"))
	}

	room, _ = h.store.GetRoom(context.Background(), room.ID)
	if len(room.Users) != 10 {
		t.Fatalf("expected member count to stay at 10 after rejected join, got %d", len(room.Users))
	}
	if _, admitted := room.Users["u11"]; admitted {
		t.Fatalf("expected overflow applicant not admitted")
	}
}

// roomIDFromCreated inspects the recorded room_created event payload to
// recover the id the store assigned, since CreateRoomRequest never takes one.
func roomIDFromCreated(h *harness, connID types.ConnID) types.RoomID {
	for _, e := range h.eventsFor(connID) {
		if e.event != "room_created" {
			continue
		}
		payload, ok := e.payload.(map[string]any)
		if !ok {
			continue
		}
		room, ok := payload["room"].(roomSnapshotPayload)
		if !ok {
			continue
		}
		return room.ID
	}
	h.t.Fatalf("no room_created event recorded for %s", connID)
	return ""
}
