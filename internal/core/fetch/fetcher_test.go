package fetch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cooldownconfig "github.com/veilnet/node/internal/config/cooldown"
	fetchconfig "github.com/veilnet/node/internal/config/fetch"
	"github.com/veilnet/node/internal/core/cooldown"
	"github.com/veilnet/node/internal/core/fetch"
	"github.com/veilnet/node/internal/core/testutil"
	"github.com/veilnet/node/pkg/interfaces/collab"
	"github.com/veilnet/node/pkg/types"
)

// stubScheduler 记录 Register/RemovePendingKeys 调用，CheckRecentlyFailed
// 的返回值由测试逐用例设置。
type stubScheduler struct {
	mu                sync.Mutex
	recentlyFailedAt  int64
	removedCalls      int
	registeredFetcher *fetch.Fetcher
}

func (s *stubScheduler) Register(f *fetch.Fetcher, keys []types.Key, persistent, blocks, reschedule bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registeredFetcher = f
	return nil
}

func (s *stubScheduler) RemovePendingKeys(f *fetch.Fetcher, fromCooldown bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removedCalls++
}

func (s *stubScheduler) AlreadyFetching() fetch.AlreadyFetchingView { return emptyAlreadyFetching{} }

func (s *stubScheduler) CheckRecentlyFailed(nodeKey []byte, nowMillis int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentlyFailedAt
}

type emptyAlreadyFetching struct{}

func (emptyAlreadyFetching) HasKey(nodeKey []byte, owner *fetch.Fetcher) bool { return false }

type alwaysHasKey struct{}

func (alwaysHasKey) HasKey(nodeKey []byte, owner *fetch.Fetcher) bool { return true }

// stubClient 记录 C2 子类钩子的最后一次调用
type stubClient struct {
	mu               sync.Mutex
	successes        int
	failures         []error
	enteredCooldowns int
}

func (c *stubClient) OnSuccess(block types.Block, fromStore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes++
}

func (c *stubClient) OnBlockDecodeError(err error) {}

func (c *stubClient) OnEnterFiniteCooldown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enteredCooldowns++
}

func (c *stubClient) OnFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, err)
}

// stubFetchContext 提供一组固定的 cooldown-tries/cooldown-time 覆盖值
type stubFetchContext struct {
	tries int64
	time  time.Duration
}

func (c stubFetchContext) GetCooldownTries() int64          { return c.tries }
func (c stubFetchContext) GetCooldownTime() time.Duration   { return c.time }
func (c stubFetchContext) BucketFactory() collab.BucketFactory { return nil }

func newTestFetcher(t *testing.T, maxRetries int64, scheduler *stubScheduler, client *stubClient, clk *testutil.MockClock) *fetch.Fetcher {
	t.Helper()
	store := testutil.NewMockBadgerStore()
	tracker, err := cooldown.New(cooldownconfig.New(nil), store, clk, &testutil.MockLogger{})
	require.NoError(t, err)

	key := types.NewCHKKey([]byte("test-node-key"))
	fctx := stubFetchContext{tries: 1, time: 1000 * time.Millisecond}

	f, err := fetch.New(key, fctx, maxRetries, tracker, scheduler, client, clk, &testutil.MockLogger{}, fetchconfig.New(nil))
	require.NoError(t, err)
	return f
}

func TestFetcher_Retry_BudgetAdvancesCooldownEachTime(t *testing.T) {
	// Arrange: max-retries=3，cooldown-tries=1（每次 retry 都立即进入冷却）
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	scheduler := &stubScheduler{}
	client := &stubClient{}
	f := newTestFetcher(t, 3, scheduler, client, clk)

	// Act: 3 次瞬时调度失败，每次之间时间前进到超出上一次的冷却窗口
	var results []bool
	for i := 0; i < 3; i++ {
		results = append(results, f.Retry(context.Background()))
		clk.Advance(1100 * time.Millisecond)
	}

	// Assert: 3 次 retry() 都返回 true（预算尚未耗尽），并且每次都折算为冷却
	assert.Equal(t, []bool{true, true, true}, results)
	assert.Equal(t, 3, client.enteredCooldowns)
}

func TestFetcher_Retry_ExhaustsBudgetAndUnregisters(t *testing.T) {
	// Arrange: max-retries=2
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	scheduler := &stubScheduler{}
	client := &stubClient{}
	f := newTestFetcher(t, 2, scheduler, client, clk)

	// Act
	first := f.Retry(context.Background())
	clk.Advance(1100 * time.Millisecond)
	second := f.Retry(context.Background())
	clk.Advance(1100 * time.Millisecond)
	third := f.Retry(context.Background())

	// Assert: 第三次调用超出预算（counter=3 > maxRetries=2），调度器收到注销
	assert.True(t, first)
	assert.True(t, second)
	assert.False(t, third)
	assert.Equal(t, 1, scheduler.removedCalls)
}

func TestFetcher_ChooseKey_AlreadyFetchingReturnsFalse(t *testing.T) {
	// Arrange
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	scheduler := &stubScheduler{}
	client := &stubClient{}
	f := newTestFetcher(t, fetch.MaxRetriesUnbounded, scheduler, client, clk)

	// Act
	ready := f.ChooseKey(alwaysHasKey{})

	// Assert
	assert.False(t, ready)
	assert.Empty(t, client.failures)
}

func TestFetcher_ChooseKey_RecentlyFailedWithBoundedRetriesSurfacesFailure(t *testing.T) {
	// Arrange: scenario 5 — max-retries = COOLDOWN_RETRIES - 1，预算不足以折算为冷却
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	cfg := fetchconfig.New(nil)
	scheduler := &stubScheduler{recentlyFailedAt: cooldown.NowMillis(clk) + 5000}
	client := &stubClient{}

	store := testutil.NewMockBadgerStore()
	tracker, err := cooldown.New(cooldownconfig.New(nil), store, clk, &testutil.MockLogger{})
	require.NoError(t, err)

	key := types.NewCHKKey([]byte("test-node-key"))
	f, err := fetch.New(key, nil, cfg.GetCooldownRetries()-1, tracker, scheduler, client, clk, &testutil.MockLogger{}, cfg)
	require.NoError(t, err)

	// Act
	ready := f.ChooseKey(emptyAlreadyFetching{})

	// Assert: 合成的 RECENTLY_FAILED 直接转发到 onFailure，没有调度冷却
	assert.False(t, ready)
	require.Len(t, client.failures, 1)
	assert.ErrorIs(t, client.failures[0], fetch.ErrRecentlyFailed)
}

func TestFetcher_OnGotKey_DiscardsMismatchedKey(t *testing.T) {
	// Arrange
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	scheduler := &stubScheduler{}
	client := &stubClient{}
	f := newTestFetcher(t, fetch.MaxRetriesUnbounded, scheduler, client, clk)

	// Act: 投递一个不匹配的密钥
	f.OnGotKey(types.NewCHKKey([]byte("other-key")), types.Block{Payload: []byte("x")})

	// Assert: 既不标记完成，也不转发成功
	assert.Equal(t, 0, client.successes)
	assert.False(t, f.IsEmpty())
}

func TestFetcher_OnGotKey_MatchingKeyDispatchesSuccess(t *testing.T) {
	// Arrange
	clk := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	scheduler := &stubScheduler{}
	client := &stubClient{}
	f := newTestFetcher(t, fetch.MaxRetriesUnbounded, scheduler, client, clk)
	key := types.NewCHKKey([]byte("test-node-key"))

	// Act
	f.OnGotKey(key, types.Block{Key: key, Payload: []byte("hello")})

	// Assert
	assert.Equal(t, 1, client.successes)
	assert.True(t, f.IsEmpty())
	assert.Equal(t, 1, scheduler.removedCalls)
}
