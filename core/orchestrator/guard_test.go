package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardSingleHolder(t *testing.T) {
	g := NewTrainingGuard()
	require.False(t, g.Active())

	require.True(t, g.TryBegin())
	require.True(t, g.Active())
	require.False(t, g.TryBegin())

	g.End()
	require.False(t, g.Active())
	require.True(t, g.TryBegin())
}

func TestGuardUnderContention(t *testing.T) {
	g := NewTrainingGuard()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryBegin() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, acquired)
	require.True(t, g.Active())
	g.End()
	require.False(t, g.Active())
}
