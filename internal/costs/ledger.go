// Package costs tracks estimated API spend. Charges are recorded per
// attempt before any error is surfaced and are never reversed, so the
// ledger reflects what was actually sent to a provider, not what
// succeeded.
package costs

import (
	"context"
	"fmt"
	"sync"
)

const (
	KindEmbedding  = "embedding"
	KindGeneration = "generation"
)

// Sink receives every charge for durable accumulation. The storage
// layer implements it.
type Sink interface {
	AddCost(ctx context.Context, kind string, units int64, usd float64) error
}

// Ledger accumulates per-kind unit counts and USD estimates in memory
// for the current process, writing each charge through to the sink.
type Ledger struct {
	mu    sync.Mutex
	units map[string]int64
	usd   map[string]float64
	sink  Sink
}

// NewLedger builds a ledger; sink may be nil for tests.
func NewLedger(sink Sink) *Ledger {
	return &Ledger{
		units: make(map[string]int64),
		usd:   make(map[string]float64),
		sink:  sink,
	}
}

// Add records a charge. The in-memory totals are updated even when the
// write-through fails; the returned error only reports persistence.
func (l *Ledger) Add(ctx context.Context, kind string, units int64, usd float64) error {
	l.mu.Lock()
	l.units[kind] += units
	l.usd[kind] += usd
	l.mu.Unlock()

	if l.sink == nil {
		return nil
	}
	if err := l.sink.AddCost(ctx, kind, units, usd); err != nil {
		return fmt.Errorf("persist %s cost: %w", kind, err)
	}
	return nil
}

// TotalUSD returns the process-lifetime spend across all kinds.
func (l *Ledger) TotalUSD() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, v := range l.usd {
		total += v
	}
	return total
}

// Snapshot returns a copy of the per-kind USD totals.
func (l *Ledger) Snapshot() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.usd))
	for k, v := range l.usd {
		out[k] = v
	}
	return out
}
