package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shifttrack/model"
)

type captureBroadcaster struct {
	mu    sync.Mutex
	snaps []*model.PresenceSnapshot
	got   chan struct{}
	err   error
}

func newCaptureBroadcaster() *captureBroadcaster {
	return &captureBroadcaster{got: make(chan struct{}, 16)}
}

func (b *captureBroadcaster) Publish(ctx context.Context, snap *model.PresenceSnapshot) error {
	b.mu.Lock()
	b.snaps = append(b.snaps, snap)
	b.mu.Unlock()
	select {
	case b.got <- struct{}{}:
	default:
	}
	return b.err
}

func (b *captureBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.snaps)
}

func TestPublisherTriggerPublishesBetweenTicks(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)
	f.seedDay()

	out := newCaptureBroadcaster()
	pub := NewPublisher(f.agg, out, time.Hour)
	pub.Start(context.Background())
	defer pub.Stop()

	pub.Trigger("end")
	select {
	case <-out.got:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a snapshot after Trigger")
	}

	out.mu.Lock()
	snap := out.snaps[0]
	out.mu.Unlock()
	if snap.Counts.Total != 4 || len(snap.Users) != 3 {
		t.Errorf("Unexpected snapshot: counts=%+v users=%d", snap.Counts, len(snap.Users))
	}
}

func TestPublisherTicks(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)

	out := newCaptureBroadcaster()
	pub := NewPublisher(f.agg, out, 10*time.Millisecond)
	pub.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-out.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("Expected tick %d", i+1)
		}
	}
	pub.Stop()
	pub.Stop()
}

func TestPublishNowSkipsOnSourceError(t *testing.T) {
	out := newCaptureBroadcaster()
	pub := &Publisher{
		source: func(ctx context.Context) (*model.PresenceSnapshot, error) {
			return nil, errors.New("store unavailable")
		},
		broadcaster: out,
		interval:    time.Second,
		trigger:     make(chan string, 1),
	}

	pub.PublishNow(context.Background(), "event")
	if out.count() != 0 {
		t.Errorf("Expected nothing published, got %d", out.count())
	}
}

func TestTriggerNeverBlocks(t *testing.T) {
	pub := &Publisher{trigger: make(chan string, 1)}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			pub.Trigger("disconnect")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked without a running loop")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := newCaptureBroadcaster()
	failing := newCaptureBroadcaster()
	failing.err = errors.New("redis down")

	err := Fanout{ok, failing}.Publish(context.Background(), &model.PresenceSnapshot{})
	if !errors.Is(err, failing.err) {
		t.Errorf("Expected the failing broadcaster's error, got %v", err)
	}
	if ok.count() != 1 || failing.count() != 1 {
		t.Errorf("Expected both broadcasters called")
	}
}
