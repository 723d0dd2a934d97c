package insert

import (
	"sync"

	"github.com/veilnet/node/pkg/interfaces/collab"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/types"
)

// ManifestPutterCallbacks 是 C4 向其父 C5 转发的契约。Go 的垂圾回收
// 消除了设计笔记里提到的"弱引用避免循环所有权"问题——这里父子互相
// 持有强引用是安全的。HandlerSucceeded 与 HandlerGotMetadata 先检查
// ManifestPutter 是否已结束，结束后是空操作；HandlerBlockSetFinished
// 与块进度回调不做这项检查。
type ManifestPutterCallbacks interface {
	HandlerSucceeded(h *PutHandler)
	HandlerFailed(h *PutHandler, err error)
	HandlerGotMetadata(h *PutHandler)
	HandlerBlockSetFinished(h *PutHandler)

	AddBlock()
	AddBlocks(n int)
	CompletedBlock(wasSuccessful bool)
	FailedBlock()
	FatallyFailedBlock()
	AddMustSucceedBlocks(n int)
}

// PutHandler 是 C4 的具体实现：包装一个清单叶子，或者是一个活跃插入，
// 或者是一个静态重定向占位符。
type PutHandler struct {
	mu sync.Mutex

	name           string
	clientMetadata string // mime

	isStatic bool

	inserter     SingleFileInserter
	currentState InserterState // 仅 active 有效
	hasState     bool

	metadata []byte // nil 直到插入器报告 URI 或完成
	finished bool

	parent ManifestPutterCallbacks
	logger log.Logger
}

// NewActivePutHandler 构造一个活跃叶子：给定 (name, data-bucket, mime)，
// 创建一个指向空 CHK 目标 URI 的插入块，并创建一个子插入器。
func NewActivePutHandler(parent ManifestPutterCallbacks, name string, bucket collab.Bucket, mime string, inlineThreshold int64, logger log.Logger) *PutHandler {
	h := &PutHandler{
		name:           name,
		clientMetadata: mime,
		parent:         parent,
		logger:         logger,
	}
	h.inserter = NewMemoryInserterWithThreshold(h, bucket, mime, types.URI(""), true, inlineThreshold, logger)
	h.currentState = h.inserter.State()
	h.hasState = true
	return h
}

// NewStaticPutHandler 构造一个静态重定向：给定 (name, target-URI, mime)，
// 立即构造并序列化一个 SIMPLE_REDIRECT 元数据对象。没有插入器，
// 没有 current-state。
func NewStaticPutHandler(parent ManifestPutterCallbacks, name string, targetURI types.URI, mime string, logger log.Logger) *PutHandler {
	h := &PutHandler{
		name:           name,
		clientMetadata: mime,
		isStatic:       true,
		parent:         parent,
		logger:         logger,
	}
	h.metadata = buildSimpleRedirectMetadata(targetURI, mime, nil)
	return h
}

// Name 返回叶子名称
func (h *PutHandler) Name() string { return h.name }

// IsStatic 报告该叶子是否为静态重定向
func (h *PutHandler) IsStatic() bool { return h.isStatic }

// Metadata 返回已知的元数据字节：活跃叶子在插入器报告之前为 nil，
// 静态叶子在构造时即已就绪
func (h *PutHandler) Metadata() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metadata
}

// Finished 报告该叶子是否已贡献其元数据字节
func (h *PutHandler) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Start 启动底层插入器；静态叶子没有插入器，Start 是空操作。
func (h *PutHandler) Start() error {
	if h.isStatic {
		return nil
	}
	return h.inserter.Start()
}

// ---- InserterParent 实现：来自子 C3 的回调 ----

// OnEncode 对应"插入器分配了一个路由 URI"。如果 metadata 尚未赋值，
// 说明数据并没有走内联元数据路径；把 key 的 URI 合成为 SIMPLE_REDIRECT
// 并反馈进 OnMetadata（"数据小到可以内联为元数据"在这里体现为调用方
// 已经决定用 URI 路径，因此这个分支始终走 URI 编码）。
func (h *PutHandler) OnEncode(key types.Key, uri types.URI, state InserterState) {
	h.mu.Lock()
	alreadySet := h.metadata != nil
	h.mu.Unlock()
	if alreadySet {
		return
	}
	meta := buildSimpleRedirectMetadata(uri, h.clientMetadata, nil)
	h.OnMetadata(meta, state)
}

// OnMetadata 如果元数据已赋值，记录并丢弃（不允许重新赋值）。否则
// 序列化并原子地标记完成，通知父级。
func (h *PutHandler) OnMetadata(meta []byte, state InserterState) {
	h.mu.Lock()
	if h.metadata != nil {
		h.mu.Unlock()
		if h.logger != nil {
			h.logger.Warnf("insert: put handler %q 元数据已赋值，丢弃重复回调", h.name)
		}
		return
	}
	h.metadata = meta
	h.finished = true
	h.mu.Unlock()

	h.parent.HandlerGotMetadata(h)
}

// OnInsertSuccess 从父级的 running-put-handlers 移除自身；
// 由 ManifestPutter.HandlerSucceeded 负责判断集合是否清空。
func (h *PutHandler) OnInsertSuccess(state InserterState) {
	h.parent.HandlerSucceeded(h)
}

// OnInsertFailure 转发到父级的 fail(err)
func (h *PutHandler) OnInsertFailure(err error, state InserterState) {
	h.parent.HandlerFailed(h, err)
}

// OnTransition 仅当 old == currentState 时更新 currentState
func (h *PutHandler) OnTransition(old, new InserterState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasState && h.currentState == old {
		h.currentState = new
	}
}

// OnBlockSetFinished 从父级的 waiting-for-block-sets 移除自身
func (h *PutHandler) OnBlockSetFinished(state InserterState) {
	h.parent.HandlerBlockSetFinished(h)
}

// ---- 进度统计钩子：无条件转发给父级，集中记账 ----

func (h *PutHandler) AddBlock()                      { h.parent.AddBlock() }
func (h *PutHandler) AddBlocks(n int)                { h.parent.AddBlocks(n) }
func (h *PutHandler) CompletedBlock(wasSuccess bool) { h.parent.CompletedBlock(wasSuccess) }
func (h *PutHandler) FailedBlock()                   { h.parent.FailedBlock() }
func (h *PutHandler) FatallyFailedBlock()            { h.parent.FatallyFailedBlock() }
func (h *PutHandler) AddMustSucceedBlocks(n int)     { h.parent.AddMustSucceedBlocks(n) }

// Cancel 标记该叶子已被父级取消。运行中的插入不会被抢占——它的回调
// 到达时会被父级的 finished 检查挡掉——这里只是留出日志钩子。
func (h *PutHandler) Cancel() {
	if h.logger != nil {
		h.logger.Debugf("insert: put handler %q 已被取消", h.name)
	}
}
