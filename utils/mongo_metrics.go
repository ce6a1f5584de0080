package utils

import (
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

type MongoMetrics struct {
	ActiveConnections  int64     `json:"active_connections"`
	OpenConnections    int64     `json:"open_connections"`
	CreatedConnections int64     `json:"created_connections"`
	ClosedConnections  int64     `json:"closed_connections"`
	CheckoutFailures   int64     `json:"checkout_failures"`
	LastCheckTime      time.Time `json:"last_check_time"`
}

var metrics MongoMetrics

// MongoPoolMonitor feeds the driver's pool events into the process-wide counters
func MongoPoolMonitor() *event.PoolMonitor {
	return &event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				atomic.AddInt64(&metrics.CreatedConnections, 1)
				atomic.AddInt64(&metrics.OpenConnections, 1)
			case event.ConnectionClosed:
				atomic.AddInt64(&metrics.ClosedConnections, 1)
				atomic.AddInt64(&metrics.OpenConnections, -1)
			case event.GetSucceeded:
				atomic.AddInt64(&metrics.ActiveConnections, 1)
			case event.ConnectionReturned:
				atomic.AddInt64(&metrics.ActiveConnections, -1)
			case event.GetFailed:
				atomic.AddInt64(&metrics.CheckoutFailures, 1)
			}
		},
	}
}

func GetMongoMetrics() MongoMetrics {
	return MongoMetrics{
		ActiveConnections:  atomic.LoadInt64(&metrics.ActiveConnections),
		OpenConnections:    atomic.LoadInt64(&metrics.OpenConnections),
		CreatedConnections: atomic.LoadInt64(&metrics.CreatedConnections),
		ClosedConnections:  atomic.LoadInt64(&metrics.ClosedConnections),
		CheckoutFailures:   atomic.LoadInt64(&metrics.CheckoutFailures),
		LastCheckTime:      time.Now(),
	}
}
