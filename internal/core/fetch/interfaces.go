package fetch

import (
	"time"

	"github.com/veilnet/node/pkg/interfaces/collab"
	"github.com/veilnet/node/pkg/types"
)

// FetchContext 承载一次获取操作共享的、可能随运行期调整的参数。
// 对应源码中的 ClientContext/FetchContext：cooldown-tries 与
// cooldown-time 可以按请求覆盖默认值。
type FetchContext interface {
	GetCooldownTries() int64
	GetCooldownTime() time.Duration
	BucketFactory() collab.BucketFactory
}

// AlreadyFetchingView 是调度器对"当前正在获取中的密钥集合"的视图。
type AlreadyFetchingView interface {
	// HasKey 报告 nodeKey 是否已经在由 owner 以外的某个获取器获取
	HasKey(nodeKey []byte, owner *Fetcher) bool
}

// Scheduler 是本子系统消费、不实现的调度器协作者接口。
type Scheduler interface {
	Register(f *Fetcher, keys []types.Key, persistent, blocks, reschedule bool) error
	RemovePendingKeys(f *Fetcher, fromCooldown bool)
	AlreadyFetching() AlreadyFetchingView
	// CheckRecentlyFailed 返回节点记忆里该节点密钥的最早可重试时间
	// （绝对墙钟毫秒值），0 表示没有最近失败的记录
	CheckRecentlyFailed(nodeKey []byte, nowMillis int64) int64
}

// Client 是拥有该获取器的父请求，对应 C2 的"子类钩子"。
type Client interface {
	OnSuccess(block types.Block, fromStore bool)
	OnBlockDecodeError(err error)
	OnEnterFiniteCooldown()
	// OnFailure 在获取器最终放弃（重试预算耗尽或 RECENTLY_FAILED 不可折算）时调用
	OnFailure(err error)
}
