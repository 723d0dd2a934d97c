// Package fetch 实现 C2：单密钥获取器。
//
// 🎯 核心职责：
// - 驱动一个内容哈希密钥通过调度器注册、冷却判定、成败回调
// - 在有界与无界重试预算之间切换计数存放位置
package fetch

import (
	"context"
	"math"
	"sync"

	fetchconfig "github.com/veilnet/node/internal/config/fetch"
	"github.com/veilnet/node/internal/core/cooldown"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/clock"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/metrics"
	"github.com/veilnet/node/pkg/types"
)

// MaxRetriesUnbounded 是 max-retries 的哨兵值：-1 表示无界重试
const MaxRetriesUnbounded = -1

// hierarchicalCooldown 对应源码中的 Long.MAX_VALUE：表示密钥当前正被
// 别的获取器获取，这是层级冷却，不写入追踪器
const hierarchicalCooldown = int64(math.MaxInt64)

// Fetcher 是 C2 的具体实现。
type Fetcher struct {
	mu sync.Mutex

	key        types.Key
	identity   cooldown.Identity
	ctx        FetchContext
	maxRetries int64

	retryCount int64 // 仅当 maxRetries != -1 时在本地计数
	cancelled  bool
	finished   bool

	cachedCooldownTries int64
	cachedCooldownTime  int64 // 毫秒

	tracker   *cooldown.Tracker
	scheduler Scheduler
	client    Client
	clock     clock.Clock
	logger    log.Logger
	cfg       *fetchconfig.Config
}

// New 创建单密钥获取器
func New(
	key types.Key,
	fctx FetchContext,
	maxRetries int64,
	tracker *cooldown.Tracker,
	scheduler Scheduler,
	client Client,
	clk clock.Clock,
	logger log.Logger,
	cfg *fetchconfig.Config,
) (*Fetcher, error) {
	if len(key.NodeKey) == 0 {
		return nil, ErrKeyAbsent
	}
	if clk == nil {
		return nil, ErrClockNil
	}
	if tracker == nil {
		return nil, ErrTrackerNil
	}
	if scheduler == nil {
		return nil, ErrSchedulerNil
	}
	if cfg == nil {
		cfg = fetchconfig.New(nil)
	}
	return &Fetcher{
		key:        key,
		identity:   cooldown.Identity(key.NodeKey),
		ctx:        fctx,
		maxRetries: maxRetries,
		tracker:    tracker,
		scheduler:  scheduler,
		client:     client,
		clock:      clk,
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// Schedule 向调度器注册自身。仅当密钥缺失（编程错误）时失败，该检查
// 已在构造阶段完成，这里只是转发注册调用。
func (f *Fetcher) Schedule(ctx context.Context) error {
	return f.scheduler.Register(f, []types.Key{f.key}, false, false, false)
}

// ChooseKey 是调度器钩子。就绪时返回 true，否则返回 false。
//
// 步骤严格遵循：
//  1. 已有别的获取器在抓这个节点密钥 → 什么都不做
//  2. 询问 recently-failed 时间 l；l 在未来时：
//     - 重试预算无界或已达 COOLDOWN_RETRIES → 折算为冷却，
//     唤醒时间取条目现有唤醒时间与 l 中的较大者
//     - 否则 → 合成 RECENTLY_FAILED 失败
//  3. 否则就绪
func (f *Fetcher) ChooseKey(already AlreadyFetchingView) bool {
	if already.HasKey(f.key.NodeKey, f) {
		return false
	}

	now := cooldown.NowMillis(f.clock)
	wake := f.scheduler.CheckRecentlyFailed(f.key.NodeKey, now)
	if wake > now {
		budgetAllowsCooldown := f.maxRetries == MaxRetriesUnbounded || f.retryBudgetRemaining() >= f.cfg.GetCooldownRetries()
		if budgetAllowsCooldown {
			target := wake
			if item, err := f.tracker.Make(context.Background(), f.identity); err == nil && item.CooldownWakeupTime > target {
				target = item.CooldownWakeupTime
			}
			if _, err := f.tracker.SetCachedWakeup(context.Background(), target, f.identity, "", true); err != nil && f.logger != nil {
				f.logger.Warnf("fetch: 设置缓存唤醒失败: %v", err)
			}
			fetchChooseKeyOutcome.WithLabelValues("cooldown").Inc()
			return false
		}
		fetchChooseKeyOutcome.WithLabelValues("recently_failed").Inc()
		f.dispatchFailure(ErrRecentlyFailed)
		return false
	}

	fetchChooseKeyOutcome.WithLabelValues("ready").Inc()
	return true
}

func (f *Fetcher) retryBudgetRemaining() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxRetries == MaxRetriesUnbounded {
		return math.MaxInt64
	}
	return f.maxRetries - f.retryCount
}

// Retry 在一次可重试的失败之后调用，返回是否还会重试。
func (f *Fetcher) Retry(ctx context.Context) bool {
	f.mu.Lock()
	if f.cancelled || f.finished {
		f.mu.Unlock()
		return false
	}

	var counter int64
	if f.maxRetries == MaxRetriesUnbounded {
		f.mu.Unlock()
		item, err := f.tracker.IncrementRetry(ctx, f.identity)
		if err != nil && f.logger != nil {
			f.logger.Warnf("fetch: 递增追踪器重试计数失败: %v", err)
		}
		counter = item.RetryCount
		f.mu.Lock()
	} else {
		f.retryCount++
		counter = f.retryCount
	}

	if f.maxRetries != MaxRetriesUnbounded && counter > f.maxRetries {
		f.mu.Unlock()
		f.scheduler.RemovePendingKeys(f, false)
		fetchRetryOutcome.WithLabelValues("exhausted").Inc()
		return false
	}

	f.populateCachedCooldownLocked()
	tries := f.cachedCooldownTries
	f.mu.Unlock()

	if tries == 0 || counter%tries == 0 {
		return f.enterFiniteCooldown(ctx)
	}

	f.mu.Lock()
	f.cachedCooldownTries = 0
	f.cachedCooldownTime = 0
	f.mu.Unlock()
	fetchRetryOutcome.WithLabelValues("retried").Inc()
	return true
}

func (f *Fetcher) populateCachedCooldownLocked() {
	if f.cachedCooldownTries != 0 {
		return
	}
	if f.ctx != nil {
		f.cachedCooldownTries = f.ctx.GetCooldownTries()
		f.cachedCooldownTime = int64(f.ctx.GetCooldownTime().Milliseconds())
	}
	if f.cachedCooldownTries == 0 {
		f.cachedCooldownTries = f.cfg.GetDefaultCooldownTries()
		f.cachedCooldownTime = int64(f.cfg.GetDefaultCooldownTime().Milliseconds())
	}
}

func (f *Fetcher) enterFiniteCooldown(ctx context.Context) bool {
	now := cooldown.NowMillis(f.clock)
	item, err := f.tracker.Make(ctx, f.identity)
	if err != nil && f.logger != nil {
		f.logger.Warnf("fetch: 读取追踪器条目失败: %v", err)
	}
	if item.IsInCooldown(now) {
		if f.logger != nil {
			f.logger.Debugf("fetch: 已处于未来冷却中，保留现有唤醒时间")
		}
		fetchRetryOutcome.WithLabelValues("retried").Inc()
		return true
	}

	f.mu.Lock()
	wake := now + f.cachedCooldownTime
	f.mu.Unlock()

	if _, err := f.tracker.SetCachedWakeup(ctx, wake, f.identity, "", true); err != nil && f.logger != nil {
		f.logger.Warnf("fetch: 设置冷却唤醒失败: %v", err)
	}
	if f.client != nil {
		f.client.OnEnterFiniteCooldown()
	}
	fetchRetryOutcome.WithLabelValues("retried").Inc()
	fetchCooldownDuration.Observe(float64(f.cachedCooldownTime) / 1000)
	return true
}

// OnGotKey 由密钥监听路径调用。防止重复投递；密钥不匹配则记录并丢弃；
// 否则标记完成、从调度器注销，并转发到 OnSuccess。
func (f *Fetcher) OnGotKey(key types.Key, block types.Block) {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	if !key.Equal(f.key) {
		f.mu.Unlock()
		if f.logger != nil {
			f.logger.Warnf("fetch: onGotKey 收到不匹配的密钥，丢弃")
		}
		return
	}
	f.finished = true
	f.mu.Unlock()

	f.scheduler.RemovePendingKeys(f, false)
	f.OnSuccess(block, false)
}

// OnSuccess 尝试验证/解码；解码失败转发到 OnBlockDecodeError；
// 成功则转发到子类钩子。
func (f *Fetcher) OnSuccess(block types.Block, fromStore bool) {
	if len(block.Payload) == 0 && len(block.Header) == 0 {
		f.dispatchDecodeError(ErrBlockDecodeFailed)
		return
	}
	if f.client != nil {
		f.client.OnSuccess(block, fromStore)
	}
	fetchChooseKeyOutcome.WithLabelValues("success").Inc()
}

func (f *Fetcher) dispatchDecodeError(err error) {
	fetchRetryOutcome.WithLabelValues("decode_error").Inc()
	if f.client != nil {
		f.client.OnBlockDecodeError(err)
	}
}

func (f *Fetcher) dispatchFailure(err error) {
	if f.client != nil {
		f.client.OnFailure(err)
	}
}

// Cancel 设置 cancelled，从调度器和冷却追踪器注销。
func (f *Fetcher) Cancel(ctx context.Context) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	f.cancelled = true
	f.mu.Unlock()

	f.scheduler.RemovePendingKeys(f, false)
	if err := f.tracker.Remove(ctx, f.identity); err != nil && f.logger != nil {
		f.logger.Warnf("fetch: 取消时移除追踪器条目失败: %v", err)
	}
}

// GetCooldownTime 返回：
//   - -1：已取消或已完成
//   - 0：追踪器唤醒时间已过去，且密钥当前不在别处被获取
//   - hierarchicalCooldown：密钥当前正被别的获取器获取（层级冷却，不写入追踪器）
//   - 否则：追踪器中记录的唤醒时间
func (f *Fetcher) GetCooldownTime(ctx context.Context, already AlreadyFetchingView, now int64) int64 {
	f.mu.Lock()
	if f.cancelled || f.finished {
		f.mu.Unlock()
		return -1
	}
	f.mu.Unlock()

	if already.HasKey(f.key.NodeKey, f) {
		return hierarchicalCooldown
	}

	item, err := f.tracker.Make(ctx, f.identity)
	if err != nil {
		if f.logger != nil {
			f.logger.Warnf("fetch: 读取追踪器条目失败: %v", err)
		}
		return 0
	}
	if !item.IsInCooldown(now) {
		return 0
	}
	return item.CooldownWakeupTime
}

// OnChangedFetchContext 重新读取缓存的冷却值
func (f *Fetcher) OnChangedFetchContext(fctx FetchContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx = fctx
	f.cachedCooldownTries = 0
	f.cachedCooldownTime = 0
}

// IsEmpty 对应源码中的 isEmpty()：一旦完成就不再参与重试判定
func (f *Fetcher) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished || f.cancelled
}

// ModuleName 实现 metrics.MemoryReporter
func (f *Fetcher) ModuleName() string { return "fetch" }

// CollectMemoryStats 实现 metrics.MemoryReporter；每个 Fetcher 是单个
// 进行中的请求对象，这里报告为 1 个对象，近似字节数取其密钥长度。
func (f *Fetcher) CollectMemoryStats() metrics.ModuleMemoryStats {
	return metrics.ModuleMemoryStats{
		Module:      "fetch",
		Layer:       "L3-Fetch",
		Objects:     1,
		ApproxBytes: int64(len(f.key.NodeKey)),
	}
}
