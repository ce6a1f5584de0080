// Package watcher runs the background sweeps that move sessions between states
// without a user request: idle detection, disconnect timeout and the daily close.
package watcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"shifttrack/utils"
)

// SweepFunc performs one pass and reports how many sessions it changed.
type SweepFunc func(ctx context.Context) (int, error)

// Periodic runs a sweep on a fixed interval until its context is cancelled.
// A failed or panicking sweep is logged and the next tick runs as usual.
type Periodic struct {
	Name     string
	Interval time.Duration
	Sweep    SweepFunc
}

func NewPeriodic(name string, interval time.Duration, sweep SweepFunc) *Periodic {
	return &Periodic{Name: name, Interval: interval, Sweep: sweep}
}

// Run blocks until ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	log.Printf("Watcher %s started (every %s)", p.Name, p.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Watcher %s stopped", p.Name)
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs a single sweep bounded by the interval.
func (p *Periodic) Tick(ctx context.Context) (affected int, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.Interval)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
			utils.TrackError("sweep", p.Name+"_panic")
		}
		utils.TrackSweep(p.Name, affected, err)
		if err != nil {
			log.Printf("Watcher %s sweep failed: %v", p.Name, err)
		} else if affected > 0 {
			log.Printf("Watcher %s updated %d sessions", p.Name, affected)
		}
	}()

	return p.Sweep(ctx)
}
