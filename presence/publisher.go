package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"shifttrack/model"
	"shifttrack/utils"
)

// Publisher pushes a snapshot on every tick and, between ticks, whenever Trigger is
// called. Triggers that arrive while one is pending are coalesced.
type Publisher struct {
	source      func(ctx context.Context) (*model.PresenceSnapshot, error)
	broadcaster Broadcaster
	interval    time.Duration

	trigger chan string
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

func NewPublisher(agg *Aggregator, broadcaster Broadcaster, interval time.Duration) *Publisher {
	return &Publisher{
		source:      agg.Snapshot,
		broadcaster: broadcaster,
		interval:    interval,
		trigger:     make(chan string, 1),
	}
}

// Trigger requests an immediate publish. It never blocks.
func (p *Publisher) Trigger(reason string) {
	select {
	case p.trigger <- reason:
	default:
	}
}

// Start launches the publish loop. Calling Start twice is a no-op.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop ends the loop and waits for it to exit.
func (p *Publisher) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Publisher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PublishNow(ctx, "tick")
		case <-p.trigger:
			p.PublishNow(ctx, "event")
		}
	}
}

// PublishNow builds and publishes one snapshot. Errors are logged and counted.
func (p *Publisher) PublishNow(ctx context.Context, trigger string) {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	snap, err := p.source(ctx)
	if err != nil {
		utils.BroadcastsTotal.WithLabelValues(trigger, "error").Inc()
		log.Printf("Failed to build presence snapshot: %v", err)
		return
	}
	if err := p.broadcaster.Publish(ctx, snap); err != nil {
		utils.BroadcastsTotal.WithLabelValues(trigger, "error").Inc()
		log.Printf("Failed to publish presence snapshot: %v", err)
		return
	}
	utils.BroadcastsTotal.WithLabelValues(trigger, "ok").Inc()
}
