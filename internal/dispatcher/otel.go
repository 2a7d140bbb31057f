package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/eldstar/server/internal/dispatcher"

// initMetrics registers the sink queue instruments on the global meter,
// which is a no-op until the OTel provider is installed. Lanes are
// observed by name so the storage and influx sinks can be told apart.
func (d *Dispatcher) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting for a sink"),
	)
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for lane, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("lane", lane)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events handled by sinks"),
	)
	if err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events refused because a sink queue was full"),
	)
	if err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	return nil
}

func eventAttrs(lane, command string) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("lane", lane),
		attribute.String("command", command),
	)
}

func (d *Dispatcher) countProcessed(lane, command string) {
	d.processed.Add(context.Background(), 1, eventAttrs(lane, command))
}

// countDropped records a refused snapshot or session event. Dropped
// snapshots lose one frame in storage; the consumer retries a dropped end.
func (d *Dispatcher) countDropped(lane, command string) {
	d.dropped.Add(context.Background(), 1, eventAttrs(lane, command))
}
