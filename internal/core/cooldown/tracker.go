// Package cooldown 实现 C1：冷却追踪器。
//
// 🎯 核心职责：
// - 按获取器身份维护 {重试计数, 冷却唤醒时间}
// - 为调度器提供一个可跳过轮询的缓存提示
//
// 💡 设计特点：
// - bigcache 作为热路径读穿缓存，badger 作为跨重启持久层
// - 条目写入时带 TTL，到期自动淘汰，无需显式清扫协程
package cooldown

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	cooldownconfig "github.com/veilnet/node/internal/config/cooldown"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/clock"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/metrics"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/storage"
)

// Identity 是获取器在追踪器中的稳定身份：其目标节点密钥字节。
type Identity []byte

func (id Identity) cacheKey() string { return hex.EncodeToString(id) }

func (id Identity) storeKey() []byte {
	out := make([]byte, len(id)+len(storeKeyPrefix))
	copy(out, storeKeyPrefix)
	copy(out[len(storeKeyPrefix):], id)
	return out
}

var storeKeyPrefix = []byte("cooldown/")

// Tracker 是 C1 的具体实现。
type Tracker struct {
	mu       sync.Mutex
	cache    *bigcache.BigCache
	store    storage.BadgerStore
	clock    clock.Clock
	logger   log.Logger
	entryTTL time.Duration
}

// New 创建冷却追踪器
func New(cfg *cooldownconfig.Config, store storage.BadgerStore, clk clock.Clock, logger log.Logger) (*Tracker, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if clk == nil {
		return nil, ErrClockNil
	}
	if cfg == nil {
		cfg = cooldownconfig.New(nil)
	}
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(cfg.GetReadThroughCacheWindow()))
	if err != nil {
		return nil, err
	}
	return &Tracker{cache: cache, store: store, clock: clk, logger: logger, entryTTL: cfg.GetEntryTTL()}, nil
}

// Make 幂等地返回给定获取器身份对应的条目；不存在则以零值创建。
func (t *Tracker) Make(ctx context.Context, id Identity) (Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if raw, err := t.cache.Get(id.cacheKey()); err == nil {
		return decodeItem(raw), nil
	}

	raw, err := t.store.Get(ctx, id.storeKey())
	if err != nil {
		return Item{}, err
	}
	if raw == nil {
		item := Item{}
		t.persistLocked(ctx, id, item)
		return item, nil
	}
	item := decodeItem(raw)
	_ = t.cache.Set(id.cacheKey(), raw)
	return item, nil
}

// Remove 删除给定获取器的条目
func (t *Tracker) Remove(ctx context.Context, id Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.cache.Delete(id.cacheKey())
	if err := t.store.Delete(ctx, id.storeKey()); err != nil {
		return err
	}
	cooldownRemovedTotal.Inc()
	return nil
}

// SetCachedWakeup 记录一个提示，使调度器可以在 wake 之前跳过对该获取器的轮询。
// force 为 false 且已有更早的缓存唤醒时间时，保留更早的那个。
func (t *Tracker) SetCachedWakeup(ctx context.Context, wake int64, id Identity, parentGroup string, force bool) (Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, err := t.getLocked(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !force && item.CooldownWakeupTime != 0 && item.CooldownWakeupTime < wake {
		return item, nil
	}
	item.CooldownWakeupTime = wake
	t.persistLocked(ctx, id, item)
	if t.logger != nil {
		t.logger.Debugf("cooldown: %s 组 %q 唤醒时间设置为 %d", id.cacheKey(), parentGroup, wake)
	}
	return item, nil
}

// IncrementRetry 原子地递增给定获取器身份的重试计数并返回更新后的条目。
// 用于 C2 中 max-retries == -1（无界重试）的场景：这时计数记在追踪器条目上；
// 有界重试的计数留在获取器本身，以免追踪器为短生命周期的获取器增长内存。
func (t *Tracker) IncrementRetry(ctx context.Context, id Identity) (Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, err := t.getLocked(ctx, id)
	if err != nil {
		return Item{}, err
	}
	item.RetryCount++
	t.persistLocked(ctx, id, item)
	return item, nil
}

// IsEligible 报告给定的绝对唤醒时间是否已经过去（即调度器可以选中该键）
func IsEligible(wakeMillis, nowMillis int64) bool {
	return wakeMillis <= nowMillis
}

func (t *Tracker) getLocked(ctx context.Context, id Identity) (Item, error) {
	if raw, err := t.cache.Get(id.cacheKey()); err == nil {
		return decodeItem(raw), nil
	}
	raw, err := t.store.Get(ctx, id.storeKey())
	if err != nil {
		return Item{}, err
	}
	if raw == nil {
		return Item{}, nil
	}
	return decodeItem(raw), nil
}

func (t *Tracker) persistLocked(ctx context.Context, id Identity, item Item) {
	raw := encodeItem(item)
	_ = t.cache.Set(id.cacheKey(), raw)
	if err := t.store.SetWithTTL(ctx, id.storeKey(), raw, t.entryTTL); err != nil && t.logger != nil {
		t.logger.Warnf("cooldown: 持久化 %s 失败: %v", id.cacheKey(), err)
	}
}

// NowMillis 是 clock.Clock 到毫秒墙钟值的转换助手，供 C2 复用。
func NowMillis(clk clock.Clock) int64 {
	return clk.UnixNano() / int64(time.Millisecond)
}

// ModuleName 实现 metrics.MemoryReporter
func (t *Tracker) ModuleName() string { return "cooldown" }

// CollectMemoryStats 实现 metrics.MemoryReporter；bigcache 暴露的是条目数
// 的近似值，因此这里只报告缓存条目数，不臆测字节占用。
func (t *Tracker) CollectMemoryStats() metrics.ModuleMemoryStats {
	var items int64
	if t.cache != nil {
		items = int64(t.cache.Len())
	}
	return metrics.ModuleMemoryStats{
		Module:     "cooldown",
		Layer:      "L3-Fetch",
		CacheItems: items,
	}
}
