package serve_test

import (
	"sync"
	"testing"

	libpeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serveconfig "github.com/veilnet/node/internal/config/serve"
	"github.com/veilnet/node/internal/core/serve"
	"github.com/veilnet/node/internal/core/testutil"
	"github.com/veilnet/node/pkg/types"
)

// stubSender 是 serve.Sender 的受控实现：测试逐个触发状态变化。
type stubSender struct {
	mu       sync.Mutex
	lastCb   func(mask serve.WaitStatusMask, status serve.SenderStatus)
	subCalls int
	hops     int
}

func (s *stubSender) Subscribe(onStatusChange func(mask serve.WaitStatusMask, status serve.SenderStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCalls++
	s.lastCb = onStatusChange
}

func (s *stubSender) HopsLeft() int { return s.hops }

func (s *stubSender) fire(mask serve.WaitStatusMask, status serve.SenderStatus) {
	s.mu.Lock()
	cb := s.lastCb
	s.mu.Unlock()
	cb(mask, status)
}

// stubNode 是 serve.Node 的受控实现：MakeRequestSender 的返回值由测试
// 逐用例设置；其余调用只记账。
type stubNode struct {
	mu sync.Mutex

	result serve.MakeRequestSenderResult
	err    error

	addedTransferring   int
	removedTransferring int
	unlockedUIDs        []uint64
	decrementTo         int

	sentPayloadBytes    int64
	reportedSentBytes   int64
	reportedRecvBytes   int64
	reportedSentOutcome serve.StatsOutcome
	statsReportCalls    int
}

func (n *stubNode) MakeRequestSender(key types.Key, htl int, uid uint64, source libpeer.ID, closestLocation float64, resetClosestLoc, localOnly, canWrite, offerReplies bool) (serve.MakeRequestSenderResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result, n.err
}

func (n *stubNode) AddTransferringRequestHandler(uid uint64) {
	n.mu.Lock()
	n.addedTransferring++
	n.mu.Unlock()
}

func (n *stubNode) RemoveTransferringRequestHandler(uid uint64) {
	n.mu.Lock()
	n.removedTransferring++
	n.mu.Unlock()
}

func (n *stubNode) UnlockUID(uid uint64, isSSK, insert bool) {
	n.mu.Lock()
	n.unlockedUIDs = append(n.unlockedUIDs, uid)
	n.mu.Unlock()
}

func (n *stubNode) SentPayload(bytes int64) {
	n.mu.Lock()
	n.sentPayloadBytes += bytes
	n.mu.Unlock()
}

func (n *stubNode) DecrementHTL(source libpeer.ID, htl int) int {
	if n.decrementTo != 0 {
		return n.decrementTo
	}
	return htl - 1
}

func (n *stubNode) ReportSentBytes(outcome serve.StatsOutcome, bytes int64) {
	n.mu.Lock()
	n.reportedSentBytes += bytes
	n.reportedSentOutcome = outcome
	n.statsReportCalls++
	n.mu.Unlock()
}

func (n *stubNode) ReportReceivedBytes(outcome serve.StatsOutcome, bytes int64) {
	n.mu.Lock()
	n.reportedRecvBytes += bytes
	n.mu.Unlock()
}

// stubTransport 记录发出的每一条线协议消息。
type stubTransport struct {
	mu       sync.Mutex
	sent     []serve.WireMessage
	failNext bool
}

func (t *stubTransport) SendAsync(peer libpeer.ID, msg serve.WireMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext {
		t.failNext = false
		return assertErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *stubTransport) kinds() []serve.WireMessageKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]serve.WireMessageKind, 0, len(t.sent))
	for _, m := range t.sent {
		out = append(out, m.Kind)
	}
	return out
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "stub transport failure" }

func newHandler(t *testing.T, node *stubNode, transport *stubTransport, key types.Key) *serve.RequestHandler {
	t.Helper()
	h, err := serve.New(1, libpeer.ID("source-peer"), key, 18, node, transport, serveconfig.New(nil), &testutil.MockLogger{})
	require.NoError(t, err)
	return h
}

// TestRequestHandler_LocalCHKHit 覆盖场景 6：本地 CHK 命中，ACCEPTED ->
// CHK-DATA-FOUND -> 终态 SUCCESS，且 UID 生命周期完整配对。
func TestRequestHandler_LocalCHKHit(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	block := &types.Block{Key: key, Header: []byte("hdr"), Payload: []byte("payload-bytes")}
	node := &stubNode{result: serve.MakeRequestSenderResult{Block: block}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()

	// Assert: ACCEPTED，随后是告知头部的 CHK-DATA-FOUND，再是流式传输
	// 本身发出的 CHK-DATA-FOUND（携带实际载荷），状态机落到 FINISHED
	kinds := transport.kinds()
	assert.Equal(t, []serve.WireMessageKind{serve.MsgAccepted, serve.MsgCHKDataFound, serve.MsgCHKDataFound}, kinds)
	assert.Equal(t, serve.StateFinished, h.State())

	// UID 生命周期：本地 CHK 传输在开始流式发送前也要登记
	// transferring handler，add/remove/unlock 各恰好一次
	assert.Equal(t, 1, node.addedTransferring)
	assert.Equal(t, 1, node.removedTransferring)
	assert.Equal(t, []uint64{1}, node.unlockedUIDs)
}

// TestRequestHandler_LocalSSKHit 覆盖本地 SSK 命中：SSK-DATA-FOUND 之后
// 跟随一条 SSK-PUB-KEY（因为请求密钥本身就是 SSK，needsPubKey 为真）。
func TestRequestHandler_LocalSSKHit(t *testing.T) {
	// Arrange
	key := types.NewSSKKey([]byte("node-key"), []byte("pub-key"))
	block := &types.Block{Key: key, Header: []byte("hdr"), Payload: []byte("v"), PubKey: []byte("pub-key")}
	node := &stubNode{result: serve.MakeRequestSenderResult{Block: block}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()

	// Assert
	assert.Equal(t, []serve.WireMessageKind{serve.MsgAccepted, serve.MsgSSKDataFound, serve.MsgSSKPubKey}, transport.kinds())
	assert.Equal(t, serve.StateFinished, h.State())
}

// TestRequestHandler_NullSender 覆盖 HTL 耗尽/本地未命中路径：
// 在 ACCEPTED 之后回复 DATA-NOT-FOUND，随后转入 FINISHED。
func TestRequestHandler_NullSender(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	node := &stubNode{result: serve.MakeRequestSenderResult{}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()

	// Assert
	assert.Equal(t, []serve.WireMessageKind{serve.MsgAccepted, serve.MsgDataNotFound}, transport.kinds())
	assert.Equal(t, serve.StateFinished, h.State())
}

// TestRequestHandler_RemoteSender_RouteNotFound 覆盖下游 sender 路径：
// 订阅之后收到 ROUTE_NOT_FOUND，必须携带 sender 报告的剩余跳数。
func TestRequestHandler_RemoteSender_RouteNotFound(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	sender := &stubSender{hops: 7}
	node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()
	require.Equal(t, 1, sender.subCalls)
	sender.fire(0, serve.StatusRouteNotFound)

	// Assert
	assert.Equal(t, []serve.WireMessageKind{serve.MsgAccepted, serve.MsgRouteNotFound}, transport.kinds())
	assert.Equal(t, serve.StateFinished, h.State())
	last := transport.sent[len(transport.sent)-1]
	assert.Equal(t, 7, last.HopsLeft)

	// UID 生命周期：远端路径会先 add 再 remove + unlock，三者各一次
	assert.Equal(t, 1, node.addedTransferring)
	assert.Equal(t, 1, node.removedTransferring)
	assert.Equal(t, []uint64{1}, node.unlockedUIDs)
}

// TestRequestHandler_NotFinished_ResubscribesWithoutTerminating 覆盖
// NOT_FINISHED：必须重新订阅而不是转入 FINISHED。
func TestRequestHandler_NotFinished_ResubscribesWithoutTerminating(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	sender := &stubSender{}
	node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()
	sender.fire(0, serve.StatusNotFinished)

	// Assert: 还在等待，又订阅了一次（Run 里的初次订阅 + 这一次）
	assert.Equal(t, serve.StateWaitForFirstReply, h.State())
	assert.Equal(t, 2, sender.subCalls)
}

// TestRequestHandler_TransferFailed_WireExhaustiveness 覆盖"线协议穷尽性"
// 的唯一例外：超过一次性重订阅门闩之后的 TRANSFER_FAILED 不发送任何回复。
func TestRequestHandler_TransferFailed_WireExhaustiveness(t *testing.T) {
	// Arrange：MaxTransferRetrySubscriptions 默认为 1，先用满门闩
	key := types.NewCHKKey([]byte("node-key"))
	sender := &stubSender{}
	node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()
	sender.fire(0, serve.StatusTransferFailed) // 第一次：门闩允许重订阅
	require.Equal(t, serve.StateWaitForFirstReply, h.State())
	before := len(transport.sent)
	sender.fire(0, serve.StatusTransferFailed) // 第二次：门闩已用尽

	// Assert：第二次没有追加任何新消息，但状态机已经终结
	assert.Equal(t, before, len(transport.sent))
	assert.Equal(t, serve.StateFinished, h.State())
}

// TestRequestHandler_VerifyFailure_WireExhaustiveness 覆盖同一门闩对
// VERIFY_FAILURE 的处理：超过门闩之后必须发出一条本地 REJECTED-OVERLOAD。
func TestRequestHandler_VerifyFailure_WireExhaustiveness(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	sender := &stubSender{}
	node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()
	sender.fire(0, serve.StatusVerifyFailure) // 第一次：重订阅
	sender.fire(0, serve.StatusVerifyFailure) // 第二次：门闩耗尽

	// Assert
	kinds := transport.kinds()
	assert.Equal(t, serve.MsgRejectedOverload, kinds[len(kinds)-1])
	last := transport.sent[len(transport.sent)-1]
	assert.True(t, last.Local)
	assert.Equal(t, serve.StateFinished, h.State())
}

// TestRequestHandler_LocalSSKHit_ReportsSentPayload 覆盖本地 SSK 命中的
// 字节记账：发给请求方的载荷要算作"已发送"，而不是"已接收"，并且要
// 经由 SentPayload 汇报给节点。
func TestRequestHandler_LocalSSKHit_ReportsSentPayload(t *testing.T) {
	// Arrange
	key := types.NewSSKKey([]byte("node-key"), []byte("pub-key"))
	block := &types.Block{Key: key, Header: []byte("hdr"), Payload: []byte("payload"), PubKey: []byte("pub-key")}
	node := &stubNode{result: serve.MakeRequestSenderResult{Block: block}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()

	// Assert
	assert.Equal(t, int64(len(block.Payload)), node.sentPayloadBytes)
}

// TestRequestHandler_LocallyGeneratedOutcomes_SuppressStatsReport 覆盖
// finish() 里的本地生成判定：TIMED_OUT、GENERATED_REJECTED_OVERLOAD、
// INTERNAL_ERROR 都不应该把字节记入节点统计,即便走的是远端 sender 路径。
func TestRequestHandler_LocallyGeneratedOutcomes_SuppressStatsReport(t *testing.T) {
	cases := []serve.SenderStatus{
		serve.StatusTimedOut,
		serve.StatusGeneratedRejectedOverload,
		serve.StatusInternalError,
	}
	for _, status := range cases {
		// Arrange
		key := types.NewCHKKey([]byte("node-key"))
		sender := &stubSender{}
		node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
		transport := &stubTransport{}
		h := newHandler(t, node, transport, key)

		// Act
		h.Run()
		sender.fire(0, status)

		// Assert
		assert.Equal(t, 0, node.statsReportCalls)
		assert.Equal(t, int64(0), node.reportedSentBytes)
		assert.Equal(t, int64(0), node.reportedRecvBytes)
	}
}

// TestRequestHandler_RemoteDataNotFound_ReportsStats 覆盖远端 sender 路径
// 上的 DATA_NOT_FOUND：不再被当作本地生成而抑制上报。
func TestRequestHandler_RemoteDataNotFound_ReportsStats(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	sender := &stubSender{}
	node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()
	sender.fire(0, serve.StatusDataNotFound)

	// Assert: reportStats 被调用过(即使字节数为零),而不是被 locallyGenerated 短路
	assert.Equal(t, 1, node.statsReportCalls)
}

// TestRequestHandler_UIDLifecycle_RemoteSenderPath 专门断言远端 sender
// 路径下 add/remove/unlock 各恰好配对一次，即便中途经历了一次 NOT_FINISHED
// 重订阅。
func TestRequestHandler_UIDLifecycle_RemoteSenderPath(t *testing.T) {
	// Arrange
	key := types.NewCHKKey([]byte("node-key"))
	sender := &stubSender{}
	node := &stubNode{result: serve.MakeRequestSenderResult{Sender: sender}}
	transport := &stubTransport{}
	h := newHandler(t, node, transport, key)

	// Act
	h.Run()
	sender.fire(0, serve.StatusNotFinished)
	sender.fire(0, serve.StatusDataNotFound)

	// Assert
	assert.Equal(t, 1, node.addedTransferring)
	assert.Equal(t, 1, node.removedTransferring)
	assert.Equal(t, []uint64{1}, node.unlockedUIDs)
}
