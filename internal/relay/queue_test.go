package relay

import (
	"testing"
	"time"

	"github.com/zitemo/livecards/pkg/types"
)

func TestEventQueue_OverflowDropsOldestNonChatFirst(t *testing.T) {
	q := newEventQueue(2)
	q.Push(types.ChatEvent{EventID: "1", Kind: types.EventGift}, 0)
	q.Push(types.ChatEvent{EventID: "2", Kind: types.EventLike}, 0)

	dropped := q.Push(types.ChatEvent{EventID: "3", Kind: types.EventGift}, 0)
	if dropped {
		t.Fatal("non-chat push should evict oldest non-chat, not drop itself")
	}

	first, _ := q.Pop()
	if first.EventID != "2" {
		t.Errorf("expected oldest event (id=1, gift) evicted, remaining oldest = %q", first.EventID)
	}
}

func TestEventQueue_ChatNeverSilentlyDropped_BlocksThenEvicts(t *testing.T) {
	q := newEventQueue(1)
	q.Push(types.ChatEvent{EventID: "1", Kind: types.EventGift}, 0)

	start := time.Now()
	dropped := q.Push(types.ChatEvent{EventID: "chat-1", Kind: types.EventChat}, 20*time.Millisecond)
	elapsed := time.Since(start)

	if dropped {
		t.Fatal("chat push should evict the queued non-chat event rather than dropping")
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("expected producer to block close to the grace period, elapsed = %v", elapsed)
	}

	ev, ok := q.Pop()
	if !ok || ev.EventID != "chat-1" {
		t.Errorf("expected chat-1 to have been enqueued after eviction, got %+v ok=%v", ev, ok)
	}
}

func TestEventQueue_AllChatFull_DropsAndCounts(t *testing.T) {
	q := newEventQueue(1)
	q.Push(types.ChatEvent{EventID: "c1", Kind: types.EventChat}, 0)

	dropped := q.Push(types.ChatEvent{EventID: "c2", Kind: types.EventChat}, 5*time.Millisecond)
	if !dropped {
		t.Fatal("expected drop when queue is full of chat events with no eviction target")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
}
