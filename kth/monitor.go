package kth

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// A Collector produces batches of readings, typically a *Device.
type Collector interface {
	Collect(ctx context.Context) ([]Reading, error)
}

// MonitorConfig contains the parameters needed to construct a Monitor.
type MonitorConfig struct {
	// Interval is how often to collect a batch.
	Interval time.Duration
	// WindowSize bounds how many readings are retained; zero means
	// DefaultWindowSize.
	WindowSize int
	// Log, if non-nil, has every batch appended to it.
	Log *Log
	// OnBatch, if non-nil, is called after each batch lands in the window.
	OnBatch func(batch []Reading)
	// Clock defaults to the wall clock.
	Clock  clock.Clock
	Logger golog.Logger
}

// Validate validates that c contains all required parameters.
func (c MonitorConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("missing required parameter interval")
	}
	if c.Logger == nil {
		return errors.New("missing required parameter logger")
	}
	return nil
}

// A Monitor polls a collector on an interval, keeping a bounded window of the
// most recent readings. Collection runs in the caller of Run; everyone else
// observes the window through snapshots.
type Monitor struct {
	collector Collector
	interval  time.Duration
	log       *Log
	onBatch   func(batch []Reading)
	clock     clock.Clock
	logger    golog.Logger

	mu     sync.Mutex
	window *Window
}

// NewMonitor returns a monitor for the given collector.
func NewMonitor(collector Collector, config MonitorConfig) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := config.Clock
	if c == nil {
		c = clock.New()
	}
	return &Monitor{
		collector: collector,
		interval:  config.Interval,
		log:       config.Log,
		onBatch:   config.OnBatch,
		clock:     c,
		logger:    config.Logger,
		window:    NewWindow(config.WindowSize),
	}, nil
}

// Run collects a first batch immediately and then one per interval until ctx
// is done. A collection or logging failure ends the run with that error;
// there are no retries.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Readings returns a snapshot of the window's contents, oldest first.
func (m *Monitor) Readings() []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.Readings()
}

// Len returns how many readings the window currently holds.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.Len()
}

func (m *Monitor) poll(ctx context.Context) error {
	batch, err := m.collector.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "collecting readings")
	}
	m.logger.Debugw("collected readings", "count", len(batch))
	if m.log != nil {
		if err := m.log.Append(batch); err != nil {
			return errors.Wrap(err, "logging readings")
		}
	}
	m.mu.Lock()
	m.window.Append(batch)
	m.mu.Unlock()
	if m.onBatch != nil {
		m.onBatch(batch)
	}
	return nil
}
