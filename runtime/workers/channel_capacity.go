package workers

import (
	"chat-sync/observability"
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// HubStats is what the worker samples from the in-process hub.
type HubStats interface {
	Stats() (rooms, handles int)
	Dropped() uint64
}

// ChannelCapacityWorker periodically reports the length and capacity of the
// internal queues and the hub counters.
// Reading len(channel) and cap(channel) is non-blocking, so this won't
// interfere with the goroutines using them.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	hub            HubStats
	capacity       *observability.Capacity
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel, hub HubStats,
	capacity *observability.Capacity, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		hub:            hub,
		capacity:       capacity,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample records the current values once.
func (w *ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		w.capacity.Channel(nc.Name, v.Len(), v.Cap())
	}
	if w.hub != nil {
		rooms, handles := w.hub.Stats()
		w.capacity.Hub(rooms, handles, w.hub.Dropped())
	}
}
