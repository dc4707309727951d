package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordTurn(10, 20*time.Millisecond, i%2 == 0)
			if i < 3 {
				c.RecordFault("transient-provider")
			}
		}(i)
	}
	wg.Wait()
	c.RecordFault("quota")

	db := filepath.Join(t.TempDir(), "a.db")
	require.NoError(t, os.WriteFile(db, make([]byte, 2048), 0644))

	s := c.Collect(db, filepath.Join(t.TempDir(), "missing.db"))
	assert.Equal(t, int64(10), s.TurnCount)
	assert.Equal(t, int64(5), s.PartialCount)
	assert.Equal(t, int64(100), s.TokenCount)
	assert.Equal(t, int64(4), s.FaultCount)
	assert.Equal(t, map[string]int64{"transient-provider": 3, "quota": 1}, s.Faults)
	assert.InDelta(t, 20.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(2048), s.DBSize)
	assert.Positive(t, s.Goroutines)
}
