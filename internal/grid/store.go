package grid

import "sync/atomic"

// Store owns the baseline and the working grid.
//
// The baseline is set at most once. The working grid is swapped atomically so
// readers observe either the previous complete grid or the new one.
type Store struct {
	baseline atomic.Pointer[OccupancyGrid]
	working  atomic.Pointer[OccupancyGrid]
	// generation increments on every working swap
	generation atomic.Uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// CaptureBaselineIfAbsent stores g as the baseline if none is set yet. It
// reports whether g became the baseline.
func (s *Store) CaptureBaselineIfAbsent(g *OccupancyGrid) bool {
	if g == nil {
		return false
	}
	return s.baseline.CompareAndSwap(nil, g)
}

// ReplaceWorking swaps in g as the working grid. The caller must not modify g
// afterwards.
func (s *Store) ReplaceWorking(g *OccupancyGrid) {
	s.working.Store(g)
	s.generation.Add(1)
}

// Snapshot returns the current working grid, or nil if none has arrived.
// The returned grid is shared and must be treated as read-only.
func (s *Store) Snapshot() *OccupancyGrid {
	return s.working.Load()
}

// Baseline returns the baseline grid, or nil.
func (s *Store) Baseline() *OccupancyGrid {
	return s.baseline.Load()
}

// Generation returns the number of working grid swaps so far.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}
