package mock

import (
	"sync"

	"github.com/zitemo/livecards/pkg/types"
)

// FrameDecoder is a test double implementing relay.FrameDecoder. Frames are
// matched to configured events by exact byte-slice equality of the raw
// frame, keyed by its string conversion for simplicity in tests.
type FrameDecoder struct {
	mu     sync.Mutex
	Events map[string]types.ChatEvent
	Acks   map[string]bool
	Err    error
}

// NewFrameDecoder constructs an empty FrameDecoder test double.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{Events: make(map[string]types.ChatEvent), Acks: make(map[string]bool)}
}

func (d *FrameDecoder) Decode(frame []byte) (types.ChatEvent, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return types.ChatEvent{}, false, d.Err
	}
	ev, ok := d.Events[string(frame)]
	return ev, ok, nil
}

func (d *FrameDecoder) NeedsAck(frame []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Acks[string(frame)]
}

func (d *FrameDecoder) BuildAck(frame []byte) []byte {
	return append([]byte("ack:"), frame...)
}
