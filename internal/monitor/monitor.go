// Package monitor periodically publishes the server status to a file
// and to the metrics store.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/eldstar/server/internal/influx"
	"github.com/eldstar/server/internal/status"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// DefaultInterval is how often the status is published.
const DefaultInterval = time.Second

// Reporter produces the current status.
type Reporter interface {
	Report() status.Report
}

// PointWriter receives the server status point.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Reporter   Reporter
	Influx     PointWriter // optional
	StatusFile string      // optional
	Interval   time.Duration
	Logger     *slog.Logger
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Publish()
		}
	}
}

// Publish writes one status report to every configured destination.
func (s *Service) Publish() {
	rep := s.deps.Reporter.Report()

	if s.deps.StatusFile != "" {
		if err := WriteStatusFile(s.deps.StatusFile, rep); err != nil {
			s.deps.Logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketServer, ServerPoint(rep, time.Now())); err != nil {
			s.deps.Logger.Debug("Error writing status point", "error", err)
		}
	}
}

// WriteStatusFile replaces path with rep as indented JSON.
func WriteStatusFile(path string, rep status.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// ServerPoint describes the server state at t.
func ServerPoint(rep status.Report, t time.Time) *influxdb2_write.Point {
	connected := rep.Session != nil
	return influxdb2.NewPoint(
		"server",
		map[string]string{"version": rep.Version},
		map[string]any{
			"connected":     connected,
			"backlog":       rep.Backlog,
			"lastFrame":     rep.LastFrame,
			"totalSessions": rep.TotalSessions,
			"ticks":         rep.Ticks,
			"adopted":       rep.Adopted,
		},
		t,
	)
}
