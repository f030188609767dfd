package scout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTracker_Empty(t *testing.T) {
	g := newTestGrid(4, 5)
	st := NewStateTracker(g, DefaultConfig().Frontier)

	_, ok := st.LastReport()
	assert.False(t, ok)

	s := st.Summary()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, 20, s.TotalCells)
	assert.Equal(t, 0, s.KnownCells)
	assert.Nil(t, s.Pose)

	snap, overlay := st.Snapshot()
	assert.Equal(t, 4, snap.Rows)
	assert.Equal(t, StatusIdle, overlay.Status)
	assert.Nil(t, overlay.Pose)
}

func TestStateTracker_Observe(t *testing.T) {
	g := newTestGrid(4, 5)
	fillRect(t, g, 0, 0, 1, 4, 0.1)
	require.NoError(t, g.Set(3, 4, 0.9))
	st := NewStateTracker(g, DefaultConfig().Frontier)

	now := time.Now()
	st.Observe(CycleReport{SessionID: "abc", Cycle: 1, Status: StatusExploring, Pose: Pose{X: 1, Y: 1}, Time: now})
	st.Observe(CycleReport{SessionID: "abc", Cycle: 2, Status: StatusExploring, Pose: Pose{X: 2, Y: 1},
		Frontiers: []Frontier{{}, {}}, Time: now})

	s := st.Summary()
	assert.Equal(t, "abc", s.SessionID)
	assert.Equal(t, 2, s.Cycle)
	assert.Equal(t, 2, s.Frontiers)
	assert.Equal(t, 11, s.KnownCells)
	assert.InDelta(t, 11.0/20.0, s.Coverage, 1e-12)
	require.NotNil(t, s.Pose)
	assert.Equal(t, 2.0, s.Pose.X)

	assert.Equal(t, []Point{{X: 1, Y: 1}, {X: 2, Y: 1}}, st.Trail())

	_, overlay := st.Snapshot()
	assert.Equal(t, 2, overlay.Cycle)
	assert.Len(t, overlay.Frontiers, 2)
}

func TestStateTracker_TrailIsBounded(t *testing.T) {
	st := NewStateTracker(newTestGrid(2, 2), DefaultConfig().Frontier)
	st.maxTrail = 3
	for i := 0; i < 10; i++ {
		st.Observe(CycleReport{Pose: Pose{X: float64(i)}})
	}
	assert.Equal(t, []Point{{X: 7}, {X: 8}, {X: 9}}, st.Trail())
}
