package operations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestReaper(clock *testClock, retention, ceiling time.Duration) (*Reaper, *Registry) {
	registry := NewRegistry(clock.Now)
	runner := NewRunner(RunnerConfig{
		Registry:         registry,
		ExecutionCeiling: ceiling,
		Now:              clock.Now,
	})
	reaper := NewReaper(ReaperConfig{
		Registry:         registry,
		Runner:           runner,
		RetentionWindow:  retention,
		ExecutionCeiling: ceiling,
		Now:              clock.Now,
	})
	return reaper, registry
}

func TestReaper_EvictsTerminalAfterRetention(t *testing.T) {
	clock := &testClock{now: time.Unix(10000, 0)}
	reaper, registry := newTestReaper(clock, 5*time.Minute, 15*time.Minute)

	id, err := registry.Create(1, VerbPlan)
	require.NoError(t, err)
	require.NoError(t, registry.Complete(id, StatusCompleted, ""))

	// Inside retention: the record stays readable.
	clock.Advance(4 * time.Minute)
	reaper.sweep()
	_, err = registry.Get(id)
	assert.NoError(t, err)

	clock.Advance(2 * time.Minute)
	reaper.sweep()
	_, err = registry.Get(id)
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestReaper_LeavesRunningOperationsWithinCeiling(t *testing.T) {
	clock := &testClock{now: time.Unix(10000, 0)}
	reaper, registry := newTestReaper(clock, 5*time.Minute, 15*time.Minute)

	id, _ := registry.Create(1, VerbApply)

	clock.Advance(14 * time.Minute)
	reaper.sweep()

	info, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
}

func TestReaper_ForcesTimeoutPastCeilingThenEvicts(t *testing.T) {
	clock := &testClock{now: time.Unix(10000, 0)}
	reaper, registry := newTestReaper(clock, 5*time.Minute, 15*time.Minute)

	id, _ := registry.Create(1, VerbApply)
	registry.Append(id, "still applying")

	clock.Advance(16 * time.Minute)
	reaper.sweep()

	info, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "execution ceiling")

	// Existing log lines survive until the retention window passes.
	res, err := registry.Read(id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"still applying"}, res.Lines)

	clock.Advance(6 * time.Minute)
	reaper.sweep()
	_, err = registry.Get(id)
	assert.ErrorIs(t, err, ErrUnknownOperation)
}
