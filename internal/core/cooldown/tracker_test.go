package cooldown_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cooldownconfig "github.com/veilnet/node/internal/config/cooldown"
	"github.com/veilnet/node/internal/core/cooldown"
	"github.com/veilnet/node/internal/core/testutil"
)

func newTestTracker(t *testing.T) (*cooldown.Tracker, *testutil.MockBadgerStore) {
	t.Helper()
	store := testutil.NewMockBadgerStore()
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	tracker, err := cooldown.New(cooldownconfig.New(nil), store, clk, &testutil.MockLogger{})
	require.NoError(t, err)
	return tracker, store
}

func TestTracker_Make_CreatesZeroValueWhenAbsent(t *testing.T) {
	// Arrange
	tracker, _ := newTestTracker(t)
	id := cooldown.Identity("fetcher-a")

	// Act
	item, err := tracker.Make(context.Background(), id)

	// Assert
	require.NoError(t, err)
	assert.Zero(t, item.RetryCount)
	assert.Zero(t, item.CooldownWakeupTime)
}

func TestTracker_IncrementRetry_Accumulates(t *testing.T) {
	// Arrange
	tracker, _ := newTestTracker(t)
	id := cooldown.Identity("fetcher-b")

	// Act
	first, err := tracker.IncrementRetry(context.Background(), id)
	require.NoError(t, err)
	second, err := tracker.IncrementRetry(context.Background(), id)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(1), first.RetryCount)
	assert.Equal(t, int64(2), second.RetryCount)
}

func TestTracker_SetCachedWakeup_KeepsEarlierWake(t *testing.T) {
	// Arrange: force=false 时已有更早的缓存唤醒时间会被保留
	tracker, _ := newTestTracker(t)
	id := cooldown.Identity("fetcher-c")

	// Act: 先设置一个较晚的唤醒时间，再用较早的时间覆盖（force=false）
	_, err := tracker.SetCachedWakeup(context.Background(), 2000, id, "", false)
	require.NoError(t, err)
	earlier, err := tracker.SetCachedWakeup(context.Background(), 1000, id, "", false)
	require.NoError(t, err)

	// Assert: 唤醒时间取较早的那个
	assert.Equal(t, int64(1000), earlier.CooldownWakeupTime)
}

func TestTracker_SetCachedWakeup_ForceOverridesEarlierWake(t *testing.T) {
	// Arrange
	tracker, _ := newTestTracker(t)
	id := cooldown.Identity("fetcher-d")

	// Act: 先设置较早的唤醒时间，再用 force=true 设置较晚的时间
	_, err := tracker.SetCachedWakeup(context.Background(), 1000, id, "", false)
	require.NoError(t, err)
	forced, err := tracker.SetCachedWakeup(context.Background(), 2000, id, "", true)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(2000), forced.CooldownWakeupTime)
}

func TestTracker_Remove_ResetsEntry(t *testing.T) {
	// Arrange
	tracker, store := newTestTracker(t)
	id := cooldown.Identity("fetcher-e")
	_, err := tracker.IncrementRetry(context.Background(), id)
	require.NoError(t, err)

	// Act
	err = tracker.Remove(context.Background(), id)
	require.NoError(t, err)
	exists, _ := store.Exists(context.Background(), append([]byte("cooldown/"), id...))
	item, err := tracker.Make(context.Background(), id)

	// Assert
	assert.False(t, exists)
	require.NoError(t, err)
	assert.Zero(t, item.RetryCount)
}

func TestIsEligible(t *testing.T) {
	// Assert
	assert.True(t, cooldown.IsEligible(1000, 1000))
	assert.True(t, cooldown.IsEligible(999, 1000))
	assert.False(t, cooldown.IsEligible(1001, 1000))
}
