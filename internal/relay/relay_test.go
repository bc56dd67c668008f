package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/zitemo/livecards/internal/relay/mock"
	"github.com/zitemo/livecards/pkg/types"
)

// fakeConn is a scripted wsConn test double: it replays a fixed list of
// inbound frames, then blocks until Close is called (simulating an idle
// connection), or returns a read error immediately if failRead is set.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	idx      int
	failRead bool
	closed   chan struct{}
	written  [][]byte
}

func newFakeConn(frames [][]byte) *fakeConn {
	return &fakeConn{frames: frames, closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.failRead {
		c.mu.Unlock()
		return 0, nil, errors.New("fake read error")
	}
	if c.idx < len(c.frames) {
		f := c.frames[c.idx]
		c.idx++
		c.mu.Unlock()
		return 2, f, nil
	}
	c.mu.Unlock()

	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (wsConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i < len(d.conns) {
		return d.conns[i], nil
	}
	return nil, errors.New("fakeDialer: no more connections scripted")
}

func TestRelay_DeliversDecodedEventsAndAcksFrames(t *testing.T) {
	decoder := mock.NewFrameDecoder()
	decoder.Events["frame1"] = types.ChatEvent{EventID: "e1", Kind: types.EventChat, Content: "hello"}
	decoder.Acks["frame1"] = true

	conn := newFakeConn([][]byte{[]byte("frame1")})
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	cred := &mock.CredentialProvider{Credential: Credential{TTWID: "t"}}

	r := New(cred, decoder, Config{RoomID: "room1", HeartbeatInterval: time.Hour}, WithDialer(dialer))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	select {
	case ev := <-r.Events():
		if ev.EventID != "e1" {
			t.Errorf("EventID = %q, want e1", ev.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded event")
	}

	deadline := time.Now().Add(time.Second)
	for len(conn.written) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(conn.written) == 0 {
		t.Error("expected an ack to have been written for frame1")
	}
}

func TestRelay_ReconnectsAfterDisconnectAndEventuallyFails(t *testing.T) {
	dialer := &fakeDialer{errs: []error{
		errors.New("fail1"), errors.New("fail2"), errors.New("fail3"),
		errors.New("fail4"), errors.New("fail5"), errors.New("fail6"),
		errors.New("fail7"), errors.New("fail8"), errors.New("fail9"),
		errors.New("fail10"), errors.New("fail11"),
	}}
	decoder := mock.NewFrameDecoder()
	cred := &mock.CredentialProvider{Credential: Credential{TTWID: "t"}}

	r := New(cred, decoder, Config{
		RoomID:                 "room1",
		ReconnectInitial:       1 * time.Millisecond,
		ReconnectMax:           2 * time.Millisecond,
		MaxReconnectsPerWindow: 10,
		ReconnectWindow:        time.Minute,
	}, WithDialer(dialer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for r.Status() != StatusFailed && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Status() != StatusFailed {
		t.Fatalf("Status() = %v, want failed after exceeding reconnect budget", r.Status())
	}
}

func TestRelay_Stop_SetsStoppedStatus(t *testing.T) {
	conn := newFakeConn(nil)
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	decoder := mock.NewFrameDecoder()
	cred := &mock.CredentialProvider{Credential: Credential{TTWID: "t"}}

	r := New(cred, decoder, Config{RoomID: "room1", HeartbeatInterval: time.Hour}, WithDialer(dialer))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for r.Status() != StatusRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	r.Stop()
	if r.Status() != StatusStopped {
		t.Errorf("Status() = %v, want stopped", r.Status())
	}
}
