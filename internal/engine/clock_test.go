package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const workers, per = 10, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				v := c.Next()
				mu.Lock()
				assert.False(t, seen[v], "duplicate stamp %d", v)
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(workers*per), c.Current())
}

func TestStamps_LatestIssueWins(t *testing.T) {
	s := stamps{}
	total := cell{row: "r1", field: "total"}

	s.issue(total, 1)
	s.issue(total, 3)

	assert.False(t, s.current(total, 1), "superseded")
	assert.True(t, s.current(total, 3))
	assert.False(t, s.current(cell{row: "r2", field: "total"}, 3), "never issued")
}

func TestStamps_DropAndRenameRow(t *testing.T) {
	s := stamps{}
	s.issue(cell{"temp-1", "a"}, 1)
	s.issue(cell{"temp-1", "b"}, 2)
	s.issue(cell{"r2", "a"}, 3)

	s.renameRow("temp-1", "srv-1")
	assert.True(t, s.current(cell{"srv-1", "b"}, 2))
	assert.False(t, s.current(cell{"temp-1", "b"}, 2))

	s.dropRow("srv-1")
	assert.Len(t, s, 1)
}
