// Package stats holds the per-station transmission outcome counters.
package stats

import "sync"

// Cell is one (rate, txpower) counter bucket.
type Cell struct {
	Attempts  uint64
	Successes uint64
	// Timestamp is the event timestamp (ns) of the most recent touch.
	Timestamp uint64
}

// Sample is one MRR stage outcome flattened for accounting. Rate and TxPower
// may be negative or out of range; such values land in the unknown bucket.
type Sample struct {
	Rate      int
	TxPower   int
	Attempts  uint64
	Successes uint64
}

// Entry is a populated cell together with its grid position, as returned by
// Snapshot. Rate or TxPower of -1 denotes the unknown row/column.
type Entry struct {
	Rate    int
	TxPower int
	Cell
}

// Table is a dense counter grid over (rate ∪ unknown) × (txpower ∪ unknown).
// Dimensions come from the device's advertised rate and power tables and
// never shrink; Reset replaces the grid wholesale. A lock keeps concurrent
// snapshot reads from observing a half-applied (attempts, successes) pair.
type Table struct {
	mu        sync.RWMutex
	nRates    int
	nTxPowers int
	cells     []Cell
}

// NewTable allocates a grid of (nRates+1) × (nTxPowers+1) cells, the extra
// row and column being the unknown sentinel buckets.
func NewTable(nRates, nTxPowers int) *Table {
	t := &Table{}
	t.Reset(nRates, nTxPowers)
	return t
}

// Reset discards all counters and re-dimensions the grid. Safe to call on a
// live table.
func (t *Table) Reset(nRates, nTxPowers int) {
	if nRates < 0 {
		nRates = 0
	}
	if nTxPowers < 0 {
		nTxPowers = 0
	}
	t.mu.Lock()
	t.nRates = nRates
	t.nTxPowers = nTxPowers
	t.cells = make([]Cell, (nRates+1)*(nTxPowers+1))
	t.mu.Unlock()
}

// Dims returns the configured (rate, txpower) dimensions, excluding the
// sentinel buckets.
func (t *Table) Dims() (nRates, nTxPowers int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nRates, t.nTxPowers
}

// Update folds one event's stage outcomes into the grid. Out-of-range and
// sentinel indices accumulate in the unknown buckets rather than failing.
func (t *Table) Update(timestamp uint64, samples []Sample) {
	t.mu.Lock()
	for _, s := range samples {
		cell := &t.cells[t.index(s.Rate, s.TxPower)]
		cell.Attempts += s.Attempts
		cell.Successes += s.Successes
		cell.Timestamp = timestamp
	}
	t.mu.Unlock()
}

// Get returns the cell for (rate, txpower). Indices of -1 address the unknown
// buckets, which always exist. ok is false only for indices beyond the
// configured bounds, which is "no data" as opposed to "unknown".
func (t *Table) Get(rate, txpower int) (Cell, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rate >= t.nRates || txpower >= t.nTxPowers || rate < -1 || txpower < -1 {
		return Cell{}, false
	}
	return t.cells[t.index(rate, txpower)], true
}

// Snapshot returns every cell that has been touched since the last reset.
// Safe to call concurrently with Update.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var entries []Entry
	stride := t.nTxPowers + 1
	for i, cell := range t.cells {
		if cell.Attempts == 0 && cell.Successes == 0 && cell.Timestamp == 0 {
			continue
		}
		rate := i / stride
		txpower := i % stride
		if rate == t.nRates {
			rate = -1
		}
		if txpower == t.nTxPowers {
			txpower = -1
		}
		entries = append(entries, Entry{Rate: rate, TxPower: txpower, Cell: cell})
	}
	return entries
}

// index maps grid coordinates to the backing slice, routing sentinel and
// out-of-range values to the unknown row/column. Callers hold t.mu.
func (t *Table) index(rate, txpower int) int {
	if rate < 0 || rate >= t.nRates {
		rate = t.nRates
	}
	if txpower < 0 || txpower >= t.nTxPowers {
		txpower = t.nTxPowers
	}
	return rate*(t.nTxPowers+1) + txpower
}
