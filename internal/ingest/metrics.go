package ingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/eldstar/server/internal/ingest"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	parsed    metric.Int64Counter
	ignored   metric.Int64Counter
	committed metric.Int64Counter
	sessions  metric.Int64Counter
	backlog   metric.Int64ObservableGauge
}

// newMetrics creates the ingest instruments on the global meter. They are
// no-ops unless a meter provider has been installed.
func newMetrics(backlog func() int) (*metrics, error) {
	m := meter()
	var (
		mt  metrics
		err error
	)

	mt.parsed, err = m.Int64Counter(
		"ingest.records.parsed",
		metric.WithDescription("Records applied to the scene under construction"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating parsed counter: %w", err)
	}

	mt.ignored, err = m.Int64Counter(
		"ingest.records.ignored",
		metric.WithDescription("Blank records and records with unknown opcodes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ignored counter: %w", err)
	}

	mt.committed, err = m.Int64Counter(
		"ingest.snapshots.committed",
		metric.WithDescription("Snapshots committed to the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating committed counter: %w", err)
	}

	mt.sessions, err = m.Int64Counter(
		"ingest.sessions",
		metric.WithDescription("Producer connections accepted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	mt.backlog, err = m.Int64ObservableGauge(
		"ingest.queue.backlog",
		metric.WithDescription("Committed snapshots not yet taken by the consumer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating backlog gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mt.backlog, int64(backlog()))
			return nil
		},
		mt.backlog,
	)
	if err != nil {
		return nil, fmt.Errorf("registering backlog callback: %w", err)
	}

	return &mt, nil
}

func opcodeAttr(op byte) metric.AddOption {
	name := "blank"
	if op != 0 {
		name = string(rune(op))
	}
	return metric.WithAttributes(attribute.String("opcode", name))
}
