// Package insert 实现 C3（参考协作者）、C4（Put Handler）与
// C5（Manifest Putter）。
//
// 🎯 核心职责：
// - C3：把一个数据桶变成一个已插入的块，回报 URI 或内联元数据
// - C4：包装一个清单叶子，或者是一个活跃插入，或者是一个静态重定向
// - C5：遍历目录树，并行驱动所有叶子插入，组装并插入最终清单
package insert

import (
	"crypto/sha256"
	"io"
	"sync"

	"github.com/veilnet/node/pkg/interfaces/collab"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/types"
)

// InserterState 是子插入器当前状态的不透明标识，仅用于父对象判断
// "这次回调来自哪一个子状态"，不暴露内部字段。
type InserterState struct {
	id uint64
}

// InserterParent 是 C3 的回调目标，对应 spec 4.3 的协作者契约。
// 回调可能跨兄弟节点交错到来；父对象必须同步地把 current-state 字段
// 反映到最新状态。
type InserterParent interface {
	OnEncode(key types.Key, uri types.URI, state InserterState)
	OnMetadata(meta []byte, state InserterState)
	OnInsertSuccess(state InserterState)
	OnInsertFailure(err error, state InserterState)
	OnTransition(old, new InserterState)
	OnBlockSetFinished(state InserterState)

	// 进度统计钩子，无条件转发给父级的父级以集中记账
	AddBlock()
	AddBlocks(n int)
	CompletedBlock(wasSuccessful bool)
	FailedBlock()
	FatallyFailedBlock()
	AddMustSucceedBlocks(n int)
}

// SingleFileInserter 是 C3 暴露给核心的最小契约。
type SingleFileInserter interface {
	Start() error
	State() InserterState
}

var stateCounter uint64
var stateCounterMu sync.Mutex

func nextState() InserterState {
	stateCounterMu.Lock()
	defer stateCounterMu.Unlock()
	stateCounter++
	return InserterState{id: stateCounter}
}

// defaultInlineMetadataThreshold 决定低于该大小的数据内联元数据而不是
// 单独插入，对应源码里"数据小到可以直接塞进元数据"的判断；可通过
// internal/config/insert 按部署覆盖。
const defaultInlineMetadataThreshold = 512

// memoryInserter 是参考实现：在内存中计算一个 CHK 形状的密钥，
// 异步在自己的 goroutine 上触发回调。低层包 I/O 与加密派生超出范围，
// 这里只是让核心的回调契约可被练习、可被测试。
//
// allowInlineMetadata 为 false 时，即使数据足够小也不走内联元数据路径，
// 这是清单级插入器（C5 自己插入最终清单时）用来让 open question (b)
// 的不变式在结构上不可达，而不仅仅是靠测试断言。
type memoryInserter struct {
	parent              InserterParent
	bucket              collab.Bucket
	mime                string
	targetURI           types.URI
	allowInlineMetadata bool
	inlineThreshold     int64
	logger              log.Logger

	state InserterState
}

// NewMemoryInserter 创建参考单文件插入器，内联阈值使用默认值
func NewMemoryInserter(parent InserterParent, bucket collab.Bucket, mime string, targetURI types.URI, allowInlineMetadata bool, logger log.Logger) SingleFileInserter {
	return NewMemoryInserterWithThreshold(parent, bucket, mime, targetURI, allowInlineMetadata, defaultInlineMetadataThreshold, logger)
}

// NewMemoryInserterWithThreshold 创建参考单文件插入器，允许覆盖内联阈值
func NewMemoryInserterWithThreshold(parent InserterParent, bucket collab.Bucket, mime string, targetURI types.URI, allowInlineMetadata bool, threshold int64, logger log.Logger) SingleFileInserter {
	return &memoryInserter{
		parent:              parent,
		bucket:              bucket,
		mime:                mime,
		targetURI:           targetURI,
		allowInlineMetadata: allowInlineMetadata,
		inlineThreshold:     threshold,
		logger:              logger,
		state:               nextState(),
	}
}

func (m *memoryInserter) State() InserterState { return m.state }

// Start 异步读取桶内容、计算哈希、决定走内联元数据还是 URI 编码路径。
// 按契约，三种回调都可能在 Start 返回之前发生；这里用 goroutine 模拟
// 真实网络插入器的异步完成。
func (m *memoryInserter) Start() error {
	m.parent.AddBlock()
	go m.run()
	return nil
}

func (m *memoryInserter) run() {
	reader, err := m.bucket.NewReader()
	if err != nil {
		m.parent.FailedBlock()
		m.parent.OnInsertFailure(err, m.state)
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		m.parent.FailedBlock()
		m.parent.OnInsertFailure(err, m.state)
		return
	}

	sum := sha256.Sum256(data)
	key := types.NewCHKKey(sum[:])

	if m.allowInlineMetadata && int64(len(data)) <= m.inlineThreshold {
		meta := buildSimpleRedirectMetadata(types.URI(""), m.mime, data)
		m.parent.CompletedBlock(true)
		m.parent.OnMetadata(meta, m.state)
		m.parent.OnBlockSetFinished(m.state)
		m.parent.OnInsertSuccess(m.state)
		return
	}

	uri := m.targetURI
	if uri == "" {
		uri = types.URI("CHK@" + key.String())
	}
	m.parent.CompletedBlock(true)
	m.parent.OnEncode(key, uri, m.state)
	m.parent.OnBlockSetFinished(m.state)
	m.parent.OnInsertSuccess(m.state)
}

// buildSimpleRedirectMetadata 序列化一个 SIMPLE_REDIRECT 元数据对象。
// 真实的元数据二进制格式超出范围；这里用一个足够表达语义、可被
// 本模块自己的反序列化消费的简单编码。
func buildSimpleRedirectMetadata(target types.URI, mime string, inline []byte) []byte {
	enc := simpleRedirectMetadata{TargetURI: string(target), MimeType: mime, Inline: inline}
	return enc.encode()
}
