package serve

import (
	libpeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/veilnet/node/pkg/types"
)

// PeerTransport 是本子系统消费、不实现的对等传输协作者。低层包 I/O
// 不在范围内；这里只需要"异步发送一条消息"这一个动作。
type PeerTransport interface {
	SendAsync(peer libpeer.ID, msg WireMessage) error
}

// Sender 是下游 RequestSender 的句柄：C6 订阅其状态变化，把变化翻译
// 成线上回复。
type Sender interface {
	// Subscribe 注册一个回调，在 sender 的状态发生变化时被调用一次；
	// 调用方如果还想继续观察后续变化，需要在回调里再次调用 Subscribe。
	Subscribe(onStatusChange func(mask WaitStatusMask, status SenderStatus))
	HopsLeft() int
}

// MakeRequestSenderResult 是 Node.MakeRequestSender 的返回值：
// 命中本地存储时 Block 非空；未命中但需要下游路由时 Sender 非空；
// 两者皆空表示 HTL 已耗尽。
type MakeRequestSenderResult struct {
	Block  *types.Block
	Sender Sender
}

// Node 是本子系统消费、不实现的节点协作者。
type Node interface {
	MakeRequestSender(
		key types.Key,
		htl int,
		uid uint64,
		source libpeer.ID,
		closestLocation float64,
		resetClosestLoc bool,
		localOnly bool,
		canWrite bool,
		offerReplies bool,
	) (MakeRequestSenderResult, error)

	AddTransferringRequestHandler(uid uint64)
	RemoveTransferringRequestHandler(uid uint64)
	UnlockUID(uid uint64, isSSK bool, insert bool)
	SentPayload(n int64)
	DecrementHTL(source libpeer.ID, htl int) int

	NodeStats
}

// StatsOutcome 描述一次字节记账应该落在节点统计的哪个桶里：
// CHK 还是 SSK；"成功"还是"远端"。
type StatsOutcome struct {
	IsSSK      bool
	Successful bool
}

// NodeStats 是 Node 内嵌的字节记账协作者。写入只在请求到达 finish()
// 之后发生，由节点提供的线程安全累加器汇总并发更新。
type NodeStats interface {
	ReportSentBytes(outcome StatsOutcome, n int64)
	ReportReceivedBytes(outcome StatsOutcome, n int64)
}
