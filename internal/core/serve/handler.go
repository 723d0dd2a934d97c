package serve

import (
	"sync"

	libpeer "github.com/libp2p/go-libp2p/core/peer"

	serveconfig "github.com/veilnet/node/internal/config/serve"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/metrics"
	"github.com/veilnet/node/pkg/types"
)

// RequestHandler 是 C6：应答一条入站请求，直到给源端发出恰好一条
// 终态回复（TRANSFER_FAILED 除外，那种情况不回复）。
type RequestHandler struct {
	mu sync.Mutex

	uid    uint64
	source libpeer.ID
	key    types.Key
	htl    int

	closestLocation float64
	resetClosestLoc bool
	needsPubKey     bool

	status                  SenderStatus
	waitStatus              WaitStatusMask
	finalTransferFailed     bool
	shouldHaveStartedXfer   bool
	transferRetrySubscribed int // 一次性重订阅门闩已使用的次数
	currentState            HandlerState

	sentBytes     int64
	receivedBytes int64
	byteMu        sync.Mutex

	sender Sender

	node      Node
	transport PeerTransport
	logger    log.Logger
	cfg       *serveconfig.Config
}

// New 构造一个请求处理器。node 与 transport 不可为 nil；
// htl <= 0 时回落到配置的默认 HTL。
func New(uid uint64, source libpeer.ID, key types.Key, htl int, node Node, transport PeerTransport, cfg *serveconfig.Config, logger log.Logger) (*RequestHandler, error) {
	if node == nil {
		return nil, ErrNodeNil
	}
	if transport == nil {
		return nil, ErrTransportNil
	}
	if htl <= 0 {
		htl = cfg.GetDefaultHTL()
	}
	return &RequestHandler{
		uid:          uid,
		source:       source,
		key:          key,
		htl:          htl,
		needsPubKey:  key.IsSSK(),
		currentState: StateInitialize,
		node:         node,
		transport:    transport,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// UID 返回本次请求的标识
func (h *RequestHandler) UID() uint64 { return h.uid }

// State 返回当前状态机状态，读取受自身监视器保护
func (h *RequestHandler) State() HandlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentState
}

func (h *RequestHandler) setState(s HandlerState) {
	h.mu.Lock()
	h.currentState = s
	h.mu.Unlock()
}

// Run 驱动状态机从 INITIALIZE 出发,直到收到第一个下游回复或本地
// 已经给出终态。
func (h *RequestHandler) Run() {
	h.htl = h.node.DecrementHTL(h.source, h.htl)

	h.send(WireMessage{Kind: MsgAccepted, UID: h.uid})

	result, err := h.node.MakeRequestSender(
		h.key, h.htl, h.uid, h.source,
		h.closestLocation, h.resetClosestLoc,
		false, true, true,
	)
	if err != nil {
		h.logger.Warnf("serve: uid=%d makeRequestSender 失败: %v", h.uid, err)
		h.send(WireMessage{Kind: MsgRejectedOverload, UID: h.uid, Local: true})
		h.status = StatusInternalError
		h.finish()
		return
	}

	switch {
	case result.Block != nil:
		h.handleLocalHit(result.Block)
	case result.Sender != nil:
		h.sender = result.Sender
		h.setState(StateWaitForFirstReply)
		h.node.AddTransferringRequestHandler(h.uid)
		h.status = StatusNotFinished
		result.Sender.Subscribe(h.onStatusChange)
	default:
		h.send(WireMessage{Kind: MsgDataNotFound, UID: h.uid})
		h.status = StatusDataNotFound
		h.finish()
	}
}

func (h *RequestHandler) handleLocalHit(block *types.Block) {
	if block.Key.IsSSK() {
		h.send(WireMessage{Kind: MsgSSKDataFound, UID: h.uid, Headers: block.Header, Data: block.Payload})
		if h.needsPubKey {
			h.send(WireMessage{Kind: MsgSSKPubKey, UID: h.uid, PubKey: block.PubKey})
		}
		h.addSentBytes(int64(len(block.Payload)))
		h.node.SentPayload(int64(len(block.Payload)))
		h.status = StatusSuccess
		h.finish()
		return
	}

	h.send(WireMessage{Kind: MsgCHKDataFound, UID: h.uid, Headers: block.Header})
	h.shouldHaveStartedXfer = true
	h.node.AddTransferringRequestHandler(h.uid)
	if err := h.streamBlock(block.Payload); err != nil {
		h.logger.Warnf("serve: uid=%d 本地块流式传输失败: %v", h.uid, err)
		h.finalTransferFailed = true
		h.status = StatusTransferFailed
		h.finish()
		return
	}
	h.addSentBytes(int64(len(block.Payload)))
	h.status = StatusSuccess
	h.finish()
}

// streamBlock 是 C6 唯一的主要长耗时动作；这里委托给传输层发送原始
// 载荷，真正的分片/拥塞控制留在 PeerTransport 实现里。
func (h *RequestHandler) streamBlock(payload []byte) error {
	return h.transport.SendAsync(h.source, WireMessage{Kind: MsgCHKDataFound, UID: h.uid, Data: payload})
}

// onStatusChange 是进入 waitForFirstReply 的唯一入口：更新 wait-status
// 位，跑一次状态机体，决定是否需要转到 FINISHED。
func (h *RequestHandler) onStatusChange(mask WaitStatusMask, status SenderStatus) {
	h.mu.Lock()
	h.waitStatus = mask
	h.status = status
	h.mu.Unlock()

	terminal := h.waitForFirstReply(mask, status)
	if terminal {
		h.finish()
	}
}

// waitForFirstReply 实现 §4.6 的状态表；返回 true 表示应当转入
// FINISHED，false 表示本次不转入 FINISHED（已重订阅，或传输已开始）。
func (h *RequestHandler) waitForFirstReply(mask WaitStatusMask, status SenderStatus) bool {
	if mask&WaitRejectedOverload != 0 {
		h.send(WireMessage{Kind: MsgRejectedOverload, UID: h.uid, Local: false})
	}
	if mask&WaitTransferringData != 0 {
		h.shouldHaveStartedXfer = true
		h.send(WireMessage{Kind: MsgCHKDataFound, UID: h.uid})
		if err := h.streamBlock(nil); err != nil {
			h.finalTransferFailed = true
		}
		return false
	}

	switch status {
	case StatusNotFinished:
		h.sender.Subscribe(h.onStatusChange)
		return false
	case StatusDataNotFound:
		h.send(WireMessage{Kind: MsgDataNotFound, UID: h.uid})
		return true
	case StatusGeneratedRejectedOverload, StatusTimedOut, StatusInternalError:
		h.send(WireMessage{Kind: MsgRejectedOverload, UID: h.uid, Local: true})
		return true
	case StatusRouteNotFound:
		h.send(WireMessage{Kind: MsgRouteNotFound, UID: h.uid, HopsLeft: h.sender.HopsLeft()})
		return true
	case StatusSuccess:
		if h.key.IsSSK() {
			h.sendSSKSuccess()
		} else if !h.shouldHaveStartedXfer {
			h.logger.Warnf("serve: uid=%d 收到 CHK SUCCESS 但未曾启动传输", h.uid)
		}
		return true
	case StatusVerifyFailure, StatusTransferFailed:
		return h.handleRetryableTransferFailure(status)
	default:
		h.logger.Errorf("serve: uid=%d 未知 sender 状态 %v", h.uid, status)
		return true
	}
}

func (h *RequestHandler) sendSSKSuccess() {
	h.send(WireMessage{Kind: MsgSSKDataFound, UID: h.uid})
	if h.needsPubKey {
		h.send(WireMessage{Kind: MsgSSKPubKey, UID: h.uid})
	}
}

// handleRetryableTransferFailure 实现 shouldHaveStartedTransfer 门闩：
// 重订阅次数未达 MaxTransferRetrySubscriptions 时重订阅并继续等待；
// 达到之后 VERIFY_FAILURE 回复本地 REJECTED-OVERLOAD，TRANSFER_FAILED
// 不回复，两者都转入 FINISHED，状态保持为 sender 给出的状态。
func (h *RequestHandler) handleRetryableTransferFailure(status SenderStatus) bool {
	h.mu.Lock()
	limit := h.cfg.GetMaxTransferRetrySubscriptions()
	if h.transferRetrySubscribed < limit {
		h.transferRetrySubscribed++
		h.mu.Unlock()
		h.sender.Subscribe(h.onStatusChange)
		return false
	}
	h.mu.Unlock()

	if status == StatusVerifyFailure {
		h.send(WireMessage{Kind: MsgRejectedOverload, UID: h.uid, Local: true})
	}
	// TRANSFER_FAILED：按照线协议约定不回复，另一端被假定已经知道。
	return true
}

func (h *RequestHandler) send(msg WireMessage) {
	serveRepliesTotal.WithLabelValues(msg.Kind.String()).Inc()
	if err := h.transport.SendAsync(h.source, msg); err != nil {
		h.logger.Warnf("serve: uid=%d 发送 %s 失败: %v", h.uid, msg.Kind, err)
	}
}

func (h *RequestHandler) addSentBytes(n int64) {
	h.byteMu.Lock()
	h.sentBytes += n
	h.byteMu.Unlock()
}

func (h *RequestHandler) addReceivedBytes(n int64) {
	h.byteMu.Lock()
	h.receivedBytes += n
	h.byteMu.Unlock()
}

// finish 是每条退出路径的共同出口：转入 FINISHED，释放 UID 相关的
// 节点侧状态，并把非本地生成终态的字节统计记入 NodeStats。
func (h *RequestHandler) finish() {
	h.setState(StateFinished)
	serveTerminalStatusTotal.WithLabelValues(statusName(h.status)).Inc()

	h.node.RemoveTransferringRequestHandler(h.uid)
	h.node.UnlockUID(h.uid, h.key.IsSSK(), false)

	locallyGenerated := h.finalTransferFailed || h.status == StatusGeneratedRejectedOverload || h.status == StatusTimedOut || h.status == StatusInternalError
	if !locallyGenerated && h.sender != nil {
		h.reportStats()
	}
}

func (h *RequestHandler) reportStats() {
	outcome := StatsOutcome{IsSSK: h.key.IsSSK(), Successful: h.status == StatusSuccess}
	keyKind := "chk"
	if h.key.IsSSK() {
		keyKind = "ssk"
	}
	outcomeLabel := "remote"
	if outcome.Successful {
		outcomeLabel = "successful"
	}
	serveSentBytes.WithLabelValues(keyKind, outcomeLabel).Add(float64(h.sentBytes))
	serveReceivedBytes.WithLabelValues(keyKind, outcomeLabel).Add(float64(h.receivedBytes))
	h.node.ReportSentBytes(outcome, h.sentBytes)
	h.node.ReportReceivedBytes(outcome, h.receivedBytes)
}

func statusName(s SenderStatus) string {
	switch s {
	case StatusNotFinished:
		return "not_finished"
	case StatusDataNotFound:
		return "data_not_found"
	case StatusGeneratedRejectedOverload:
		return "generated_rejected_overload"
	case StatusTimedOut:
		return "timed_out"
	case StatusInternalError:
		return "internal_error"
	case StatusRouteNotFound:
		return "route_not_found"
	case StatusSuccess:
		return "success"
	case StatusVerifyFailure:
		return "verify_failure"
	case StatusTransferFailed:
		return "transfer_failed"
	default:
		return "unknown"
	}
}

// ModuleName 实现 metrics.MemoryReporter
func (h *RequestHandler) ModuleName() string { return "serve.request_handler" }

// CollectMemoryStats 实现 metrics.MemoryReporter；一个处理器自身轻量，
// 这里主要反映是否仍在等待下游第一条回复。
func (h *RequestHandler) CollectMemoryStats() metrics.ModuleMemoryStats {
	h.mu.Lock()
	waiting := h.currentState == StateWaitForFirstReply
	h.mu.Unlock()

	var pending int64
	if waiting {
		pending = 1
	}
	return metrics.ModuleMemoryStats{
		Module:      h.ModuleName(),
		Layer:       "L4-CoreBusiness",
		Objects:     1,
		QueueLength: pending,
	}
}
