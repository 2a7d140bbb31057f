package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eldstar/server/pkg/core"
	"go.opentelemetry.io/otel/metric"
)

// Commands routed by the consumer loop.
const (
	CommandSnapshot   = "snapshot"
	CommandSessionEnd = "session:end"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// ErrQueueFull is returned when a non-blocking buffered handler drops an event.
var ErrQueueFull = errors.New("queue full")

// Event is one unit of work handed from the consumer loop to sinks.
type Event struct {
	Command   string
	Snapshot  *core.Snapshot
	Session   core.Session
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
	lane       string
}

// Buffered makes the handler async with a queue of the given size.
// Events of one command are handled in dispatch order.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Lane makes buffered handlers registered with the same name share one
// queue, so events of different commands are handled in dispatch order.
// The first registration on a lane sets its size.
func Lane(name string) Option {
	return func(c *config) {
		c.lane = name
	}
}

// Logged adds debug logging around the handler itself, so buffered
// handlers log when the event is processed rather than when queued.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback and shutdown
	mu      sync.RWMutex
	buffers map[string]chan Event
	lanes   map[string]map[string]HandlerFunc
	closed  bool
	workers sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		lanes:    make(map[string]map[string]HandlerFunc),
		logger:   logger,
	}

	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

// Register adds a handler for the given command with optional configuration.
// Handlers must be registered before the first Dispatch.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Close stops accepting events and waits until every buffered handler
// has drained its queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) withBuffer(command string, cfg *config, h HandlerFunc) HandlerFunc {
	key := command
	if cfg.lane != "" {
		key = cfg.lane
	}

	d.mu.Lock()
	buffer, ok := d.buffers[key]
	if !ok {
		buffer = make(chan Event, cfg.bufferSize)
		d.buffers[key] = buffer
		d.lanes[key] = make(map[string]HandlerFunc)
	}
	handlers := d.lanes[key]
	handlers[command] = h
	d.mu.Unlock()

	if !ok {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for e := range buffer {
				handlers[e.Command](e)
				d.countProcessed(key, e.Command)
			}
		}()
	}

	blocking := cfg.blocking

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}

		if blocking {
			buffer <- e
			return "queued", nil
		}

		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.countDropped(key, command)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		kv := []any{"command", command}
		if e.Snapshot != nil {
			kv = append(kv, "session", e.Snapshot.Session, "frame", e.Snapshot.Frame)
		}
		d.logger.Debug("handling event", kv...)

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", append(kv, "duration", time.Since(start), "error", err)...)
		} else {
			d.logger.Debug("event complete", append(kv, "duration", time.Since(start))...)
		}

		return result, err
	}
}
