package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndSnapshot(t *testing.T) {
	r := New(30*time.Second, nil)
	r.Register("n1", "10.0.0.1", 9000, 2048)
	r.Register("n2", "10.0.0.2", 9000, 2048)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
}

func TestHeartbeatUnknownNodeFails(t *testing.T) {
	r := New(30*time.Second, nil)
	err := r.Heartbeat("ghost", time.Now())
	require.ErrorIs(t, err, ErrUnknownNode)
}

func TestHeartbeatRefreshesBeforeSweep(t *testing.T) {
	r := New(10*time.Second, nil)
	base := time.Now()
	r.Register("n1", "h", 1, 0)

	// advance well past the timeout, then heartbeat: the caller must not
	// evict itself even though its old last_seen is stale.
	err := r.Heartbeat("n1", base.Add(time.Hour))
	require.NoError(t, err)

	_, ok := r.Get("n1")
	require.True(t, ok)
}

func TestSweepEvictsStaleNodesAndCallsOnDeath(t *testing.T) {
	var died []string
	r := New(10*time.Second, func(id string) { died = append(died, id) })
	base := time.Now()
	r.Register("n1", "h", 1, 0)
	r.Register("n2", "h", 1, 0)

	r.Sweep(base.Add(time.Hour))

	require.ElementsMatch(t, []string{"n1", "n2"}, died)
	require.Equal(t, 0, r.Count())
}

func TestSweepEvictionsHookReceivesCount(t *testing.T) {
	r := New(10*time.Second, nil)
	base := time.Now()
	r.Register("n1", "h", 1, 0)
	r.Register("n2", "h", 1, 0)

	var evicted int
	r.SetSweepEvictionsHook(func(count int) { evicted += count })

	r.Sweep(base.Add(time.Hour))

	require.Equal(t, 2, evicted)
}

func TestNodeHeartbeatingWithinTimeoutSurvivesSweep(t *testing.T) {
	r := New(30*time.Second, nil)
	start := time.Now()
	r.Register("n1", "h", 1, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Heartbeat("n1", start.Add(time.Duration(i)*25*time.Second)))
	}

	_, ok := r.Get("n1")
	require.True(t, ok)
}
