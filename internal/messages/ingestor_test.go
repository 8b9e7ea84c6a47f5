package messages

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/presence"
)

type fakeSelf string

func (f fakeSelf) SelfURI(string) string { return string(f) }

type fakeNotifier struct {
	mu    sync.Mutex
	shown []Message
}

func (f *fakeNotifier) ShowMessage(_, _ string, msg Message) {
	f.mu.Lock()
	f.shown = append(f.shown, msg)
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

func textEvent(id, author, body string, ts int64) bridge.MessageEvent {
	return bridge.MessageEvent{
		AccountID:      "acc1",
		ConversationID: "conv1",
		ID:             id,
		AuthorURI:      author,
		Timestamp:      ts,
		Type:           "text/plain",
		Body:           map[string]string{"body": body},
	}
}

func TestClassifyTextAndFile(t *testing.T) {
	msg, ok := FromEvent(textEvent("m1", "peer1", "hello", 2_000_000_000_000))
	if !ok || msg.Type != TypeText || msg.Body != "hello" {
		t.Errorf("text: got %+v, ok=%v", msg, ok)
	}

	file, ok := FromEvent(bridge.MessageEvent{
		AccountID: "acc1", ConversationID: "conv1", ID: "m2",
		Type: "application/data-transfer+json",
		Body: map[string]string{"displayName": "pic.jpg", "tid": "t42"},
	})
	if !ok || file.Type != TypeImage || file.FileID != "t42" || file.Body != "pic.jpg" {
		t.Errorf("file: got %+v, ok=%v", file, ok)
	}

	// File-id-like key marks a file even without the MIME marker.
	byKey, ok := FromEvent(bridge.MessageEvent{
		AccountID: "acc1", ConversationID: "conv1", ID: "m3",
		Type: "text/plain",
		Body: map[string]string{"fileId": "f7", "displayName": "notes.pdf"},
	})
	if !ok || byKey.Type != TypeFile || byKey.FileID != "f7" {
		t.Errorf("file by key: got %+v, ok=%v", byKey, ok)
	}
}

func TestBlankSystemMessagesDiscarded(t *testing.T) {
	if _, ok := FromEvent(textEvent("m1", "peer1", "   ", 1000)); ok {
		t.Error("blank-body message not discarded")
	}
}

func TestTimestampNormalization(t *testing.T) {
	// Below the threshold: seconds, converted.
	msg, _ := FromEvent(textEvent("m1", "peer1", "hi", 1_700_000_000))
	if msg.Timestamp != 1_700_000_000_000 {
		t.Errorf("timestamp = %d, want seconds converted to millis", msg.Timestamp)
	}
	// At or above: already millis.
	msg, _ = FromEvent(textEvent("m2", "peer1", "hi", 1_700_000_000_000))
	if msg.Timestamp != 1_700_000_000_000 {
		t.Errorf("timestamp = %d, want unchanged", msg.Timestamp)
	}
}

func TestIngestDedupByID(t *testing.T) {
	i := NewIngestor(bus.New(), zap.NewNop(), fakeSelf("self"), nil, nil)

	i.Ingest(textEvent("m1", "peer1", "hello", 1000))
	// Optimistic insert followed by echo: same id again.
	i.Ingest(textEvent("m1", "peer1", "hello", 1000))

	if got := len(i.List("acc1", "conv1")); got != 1 {
		t.Errorf("cache has %d messages, want exactly 1", got)
	}
}

func TestOrderingAfterInsert(t *testing.T) {
	i := NewIngestor(bus.New(), zap.NewNop(), fakeSelf("self"), nil, nil)

	i.Ingest(textEvent("m2", "peer1", "second", 2000))
	i.Ingest(textEvent("m1", "peer1", "first", 1000))
	i.Ingest(textEvent("m3", "peer1", "third", 3000))

	list := i.List("acc1", "conv1")
	if len(list) != 3 {
		t.Fatalf("cache has %d messages, want 3", len(list))
	}
	for n := 1; n < len(list); n++ {
		if list[n-1].Timestamp > list[n].Timestamp {
			t.Fatalf("list not sorted: %v", list)
		}
	}
	if list[0].ID != "m1" || list[2].ID != "m3" {
		t.Errorf("order = %s,%s,%s", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestEmptyBulkLoadIsNoOp(t *testing.T) {
	i := NewIngestor(bus.New(), zap.NewNop(), fakeSelf("self"), nil, nil)
	i.Ingest(textEvent("m1", "peer1", "hello", 1000))

	i.IngestBulk(bridge.MessagesLoadedEvent{AccountID: "acc1", ConversationID: "conv1"})

	if got := len(i.List("acc1", "conv1")); got != 1 {
		t.Errorf("empty bulk load changed cache: %d messages, want 1", got)
	}
}

func TestBulkLoadMergesAndSorts(t *testing.T) {
	i := NewIngestor(bus.New(), zap.NewNop(), fakeSelf("self"), nil, nil)
	i.Ingest(textEvent("m2", "peer1", "live", 2000))

	i.IngestBulk(bridge.MessagesLoadedEvent{
		AccountID:      "acc1",
		ConversationID: "conv1",
		Messages: []bridge.MessageEvent{
			textEvent("m1", "peer1", "old", 1000),
			textEvent("m2", "peer1", "live", 2000), // dup of live message
			textEvent("m3", "peer1", "newer", 3000),
		},
	})

	list := i.List("acc1", "conv1")
	if len(list) != 3 {
		t.Fatalf("cache has %d messages, want 3", len(list))
	}
	if list[0].ID != "m1" || list[1].ID != "m2" || list[2].ID != "m3" {
		t.Errorf("order = %s,%s,%s", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestUpdatesMarkLiveVersusLoaded(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe(KindUpdated, 8)
	defer cancel()
	i := NewIngestor(b, zap.NewNop(), fakeSelf("self"), nil, nil)

	i.Ingest(textEvent("m1", "peer1", "hello", 1000))
	i.IngestBulk(bridge.MessagesLoadedEvent{
		AccountID:      "acc1",
		ConversationID: "conv1",
		Messages: []bridge.MessageEvent{
			textEvent("m2", "peer1", "older", 500),
			textEvent("m3", "peer1", "oldest", 200),
		},
	})
	i.Append("acc1", Message{ID: "m4", ConversationID: "conv1", AuthorURI: "self", Timestamp: 2000})

	wantLive := []bool{true, false, true}
	for n, want := range wantLive {
		select {
		case ev := <-ch:
			u, ok := ev.Payload.(Update)
			if !ok {
				t.Fatalf("event %d payload = %T, want Update", n, ev.Payload)
			}
			if u.Live != want {
				t.Errorf("event %d live = %v, want %v", n, u.Live, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", n)
		}
	}
}

func TestNotificationGating(t *testing.T) {
	n := &fakeNotifier{}
	enabled := true
	i := NewIngestor(bus.New(), zap.NewNop(), fakeSelf("self"), n, func() bool { return enabled })

	// Peer message notifies.
	i.Ingest(textEvent("m1", "peer1", "hello", 1000))
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}

	// Self-authored echo never notifies.
	i.Ingest(textEvent("m2", "self", "mine", 2000))
	if n.count() != 1 {
		t.Errorf("self echo notified: %d, want 1", n.count())
	}

	// Setting off: no notification.
	enabled = false
	i.Ingest(textEvent("m3", "peer1", "more", 3000))
	if n.count() != 1 {
		t.Errorf("disabled setting notified: %d, want 1", n.count())
	}

	// Duplicate never re-notifies.
	enabled = true
	i.Ingest(textEvent("m1", "peer1", "hello", 1000))
	if n.count() != 1 {
		t.Errorf("duplicate notified: %d, want 1", n.count())
	}
}

func TestProfileSyncDebounce(t *testing.T) {
	var mu sync.Mutex
	pushes := 0
	holder := bridge.NewHolder()
	holder.Attach(&bridge.Fake{
		SendProfileFunc: func(context.Context, string, string) error {
			mu.Lock()
			pushes++
			mu.Unlock()
			return nil
		},
	})

	ps := NewProfileSyncer(holder, bus.New(), zap.NewNop(), 5000)
	nowMS := int64(10000)
	ps.now = func() int64 { return nowMS }
	ctx := context.Background()

	// Burst of peers coming online: one push.
	ps.Trigger(ctx, "acc1", "a")
	ps.Trigger(ctx, "acc1", "b")
	ps.Trigger(ctx, "acc1", "c")

	mu.Lock()
	got := pushes
	mu.Unlock()
	if got != 1 {
		t.Errorf("pushes = %d, want 1 within debounce window", got)
	}

	// Past the window: next push goes out.
	nowMS += 5000
	ps.Trigger(ctx, "acc1", "d")
	mu.Lock()
	got = pushes
	mu.Unlock()
	if got != 2 {
		t.Errorf("pushes = %d, want 2 after window", got)
	}
}

// The tracker's accepted-online signal must reach the syncer via the bus.
func TestProfileSyncerBusWiring(t *testing.T) {
	var mu sync.Mutex
	pushes := 0
	holder := bridge.NewHolder()
	holder.Attach(&bridge.Fake{
		SendProfileFunc: func(context.Context, string, string) error {
			mu.Lock()
			pushes++
			mu.Unlock()
			return nil
		},
	})

	eb := bus.New()
	ps := NewProfileSyncer(holder, eb, zap.NewNop(), 5000)
	ps.Start(context.Background())
	defer ps.Stop()

	eb.Publish(bus.Event{
		Kind:    presence.KindOnline,
		Payload: presence.Update{AccountID: "acc1", URI: "peer1", Online: true},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := pushes
		mu.Unlock()
		if got == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("profile push never happened")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
