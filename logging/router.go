package logging

import (
	"context"
	"log"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	minSinkBuffer    = 32
	maxSinkBuffer    = 1024
	maxRetryExponent = 5
)

// Router is a Publisher that stamps events and fans them out to sinks.
// Publish never blocks: a full queue drops the event and counts it.
type Router struct {
	cfg      Config
	queue    chan Event
	sinks    []*sinkWorker
	clock    Clock
	fallback *log.Logger
	fields   map[string]any

	stop      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	lastDropLog  atomic.Int64
}

// RouterStats reports delivery counters. SinkDrops counts, per sink, the
// events that sink's own backlog refused.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	SinkDrops    map[string]uint64
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.DropWarnInterval <= 0 {
		cfg.DropWarnInterval = DefaultConfig().DropWarnInterval
	}
	sinkBuffer := min(max(cfg.SinkBuffer, minSinkBuffer), maxSinkBuffer)

	r := &Router{
		cfg:      cfg,
		queue:    make(chan Event, cfg.BufferSize),
		clock:    clock,
		fallback: log.New(os.Stderr, "[logging] ", log.LstdFlags),
		fields:   maps.Clone(cfg.Fields),
		stop:     make(chan struct{}),
	}
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.sinks = append(r.sinks, newSinkWorker(named.Name, named.Sink, sinkBuffer, r.fallback))
	}
	r.start()
	return r, nil
}

func (r *Router) start() {
	r.wg.Add(1 + len(r.sinks))
	go func() {
		defer r.wg.Done()
		defer func() {
			for _, worker := range r.sinks {
				close(worker.events)
			}
		}()
		for {
			select {
			case <-r.stop:
				r.drain()
				return
			case event := <-r.queue:
				r.forward(event)
			}
		}
	}()
	for _, worker := range r.sinks {
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(worker)
	}
}

func (r *Router) drain() {
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		default:
			return
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.cfg.MinimumSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = event.withDefaults(r.fields)
	r.eventsTotal.Add(1)
	for _, worker := range r.sinks {
		worker.enqueue(event)
	}
}

// Publish queues event for delivery. Untyped events and events published
// after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.handleDrop(event)
	}
}

func (r *Router) handleDrop(event Event) {
	r.droppedTotal.Add(1)
	now := r.clock.Now().UnixNano()
	next := r.lastDropLog.Load()
	if now < next {
		return
	}
	if r.lastDropLog.CompareAndSwap(next, now+r.cfg.DropWarnInterval.Nanoseconds()) {
		r.fallback.Printf("dropping event type=%s tick=%d dropped=%d", event.Type, event.Tick, r.droppedTotal.Load())
	}
}

// Close flushes queued events to every sink, then closes the sinks. Later
// calls return nil.
func (r *Router) Close(ctx context.Context) error {
	first := false
	r.closeOnce.Do(func() {
		first = true
		r.closed.Store(true)
		close(r.stop)
	})
	if !first {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, worker := range r.sinks {
		if err := worker.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
		SinkDrops:    make(map[string]uint64, len(r.sinks)),
	}
	for _, worker := range r.sinks {
		stats.SinkDrops[worker.name] = worker.dropped.Load()
	}
	return stats
}

// Sink returns the sink registered under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, worker := range r.sinks {
		if worker.name == name {
			return worker.sink
		}
	}
	return nil
}

type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	dropped  atomic.Uint64

	failures  int
	nextRetry time.Time
}

func newSinkWorker(name string, sink Sink, buffer int, fallback *log.Logger) *sinkWorker {
	return &sinkWorker{
		name:     name,
		sink:     sink,
		events:   make(chan Event, buffer),
		fallback: fallback,
	}
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- event.Clone():
	default:
		if n := w.dropped.Add(1); n&(n-1) == 0 {
			w.fallback.Printf("sink %s backlog full dropping event type=%s count=%d", w.name, event.Type, n)
		}
	}
}

// run writes events in order. After a write error the sink is skipped for
// an exponentially growing backoff and events in that window are dropped.
func (w *sinkWorker) run() {
	for event := range w.events {
		if time.Now().Before(w.nextRetry) {
			w.dropped.Add(1)
			continue
		}
		if err := w.sink.Write(event); err != nil {
			w.failures++
			delay := time.Duration(1<<min(w.failures, maxRetryExponent)) * time.Second
			w.nextRetry = time.Now().Add(delay)
			w.fallback.Printf("sink %s failed: %v (paused for %s)", w.name, err, delay)
			continue
		}
		w.failures = 0
	}
}
