package orchestrator

import "time"

// Ticker paces the trading loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type intervalTicker struct {
	t *time.Ticker
}

// NewIntervalTicker fires every d.
func NewIntervalTicker(d time.Duration) Ticker {
	return &intervalTicker{t: time.NewTicker(d)}
}

func (t *intervalTicker) C() <-chan time.Time { return t.t.C }
func (t *intervalTicker) Stop()               { t.t.Stop() }

// ManualTicker fires only when Tick is called.
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker creates a ManualTicker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

// Tick blocks until the loop receives t.
func (m *ManualTicker) Tick(t time.Time) { m.ch <- t }

func (m *ManualTicker) C() <-chan time.Time { return m.ch }
func (m *ManualTicker) Stop()               {}
