package transport

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagebeat/musicroom/internal/v1/channelregistry"
	"github.com/stagebeat/musicroom/internal/v1/coordinator"
	"github.com/stagebeat/musicroom/internal/v1/roomstore"
	"github.com/stagebeat/musicroom/internal/v1/sessionregistry"
	"github.com/stagebeat/musicroom/internal/v1/types"
	"github.com/stagebeat/musicroom/internal/v1/wire"
)

// fakeConn is an in-memory wsConnection: inbound() feeds readPump, outbound
// messages written by writePump land on sent.
type fakeConn struct {
	mu     sync.Mutex
	inbox  [][]byte
	readAt int
	closed bool

	sent [][]byte
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return 0, nil, websocket.ErrCloseSent
		}
		if f.readAt < len(f.inbox) {
			msg := f.inbox[f.readAt]
			f.readAt++
			f.mu.Unlock()
			return websocket.TextMessage, msg, nil
		}
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) push(event string, payload any) {
	data, err := wire.Encode(event, payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.inbox = append(f.inbox, data)
	f.mu.Unlock()
}

func (f *fakeConn) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, raw := range f.sent {
		var msg wire.Message
		if err := json.Unmarshal(raw, &msg); err == nil {
			out = append(out, msg.Event)
		}
	}
	return out
}

func newTestCoordinator() *coordinator.Coordinator {
	return coordinator.New(
		roomstore.NewStore(1, 1000, 90),
		sessionregistry.New(),
		channelregistry.New(),
		noopMetronome{},
		nil,
		coordinator.Config{
			GracePeriod:          50 * time.Millisecond,
			IntentionallyLeftTTL: 50 * time.Millisecond,
			BPMMin:               1,
			BPMMax:               1000,
			BPMDefault:           90,
			MaxParticipants:      10,
		},
	)
}

type noopMetronome struct{}

func (noopMetronome) Initialize(types.RoomID, types.Channel, int)         {}
func (noopMetronome) UpdateTempo(types.RoomID, int)                      {}
func (noopMetronome) Cleanup(types.RoomID)                               {}
func (noopMetronome) DriftStats(types.RoomID) (types.DriftStats, bool)    { return types.DriftStats{}, false }

func TestClientCreateRoomRoundTrip(t *testing.T) {
	coord := newTestCoordinator()
	conn := &fakeConn{}
	client := newClient(conn, coord, "conn-1", "u1", false)

	conn.push("create_room", map[string]any{"name": "Jam Room", "username": "alice"})

	go client.writePump()
	done := make(chan struct{})
	go func() {
		client.readPump()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()
	<-done

	events := conn.sentEvents()
	found := false
	for _, e := range events {
		if e == "room_created" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected room_created in sent events, got %v", events)
	}
}

func TestClientUnknownEventIsIgnored(t *testing.T) {
	coord := newTestCoordinator()
	conn := &fakeConn{}
	client := newClient(conn, coord, "conn-1", "u1", false)

	conn.push("not_a_real_event", map[string]any{})

	go client.writePump()
	done := make(chan struct{})
	go func() {
		client.readPump()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()
	<-done

	if len(conn.sentEvents()) != 0 {
		t.Fatalf("expected no reply for unrecognized event, got %v", conn.sentEvents())
	}
}
