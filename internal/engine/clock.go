package engine

import "sync/atomic"

// Clock is the monotonic logical clock that stamps every edit and async
// issue. Ordering decisions compare stamps, never wall-clock time or the
// arrival order of async results.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first stamp is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns a fresh, strictly larger stamp.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last stamp issued, or 0.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// cell addresses one field of one row.
type cell struct {
	row   string
	field string
}

// stamps records the latest stamp issued per cell. Only the result carrying
// the latest stamp for its cell may be applied: most recently issued wins,
// whatever order the work completes in.
type stamps map[cell]int64

func (s stamps) issue(c cell, seq int64) { s[c] = seq }

// current reports whether seq is still the latest stamp for c.
func (s stamps) current(c cell, seq int64) bool {
	latest, ok := s[c]
	return ok && latest == seq
}

func (s stamps) dropRow(rowID string) {
	for c := range s {
		if c.row == rowID {
			delete(s, c)
		}
	}
}

func (s stamps) renameRow(from, to string) {
	for c, seq := range s {
		if c.row == from {
			delete(s, c)
			s[cell{row: to, field: c.field}] = seq
		}
	}
}
