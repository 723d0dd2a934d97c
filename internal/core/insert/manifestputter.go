package insert

import (
	"encoding/json"
	"sync"

	manifestconfig "github.com/veilnet/node/internal/config/insert"
	"github.com/veilnet/node/pkg/interfaces/collab"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/metrics"
	"github.com/veilnet/node/pkg/types"
)

// defaultDocumentCandidates 是没有显式 default-name 时依次尝试的
// 常见默认文档名；第一个命中者胜出，全不命中则清单不含默认条目。
var defaultDocumentCandidates = []string{"index.html", "index.htm", "default.html", "default.htm"}

// Client 是 ManifestPutter 的外部客户端回调契约。
type Client interface {
	OnSuccess(p *ManifestPutter)
	OnFailure(err error, p *ManifestPutter)
	OnGeneratedURI(uri types.URI, p *ManifestPutter)
}

// handlerNode 是镶嵌在输入树之上的第二棵递归变体，叶子是 C4 实例。
type handlerNode struct {
	leaf    *PutHandler
	subtree map[string]*handlerNode
}

// ManifestPutter 是 C5 的具体实现。
type ManifestPutter struct {
	mu sync.Mutex

	handlerTree map[string]*handlerNode

	runningHandlers     map[*PutHandler]struct{}
	waitingForMetadata  map[*PutHandler]struct{}
	waitingForBlockSets map[*PutHandler]struct{}

	insertedAllFiles          bool
	insertedManifest          bool
	metadataBlockSetFinalized bool
	blockSetFinalizedSent     bool
	finished                  bool
	cancelled                 bool

	finalURI types.URI

	totalSize     int64
	numberOfFiles int

	defaultName string
	callerURI   types.URI

	bucketFactory collab.BucketFactory
	client        Client
	logger        log.Logger
	cfg           *manifestconfig.Config
	events        EventProducer

	currentMetadataInserterState InserterState
	hasMetadataInserterState     bool

	completionOnce sync.Once

	// 区块计数，用于 SplitfileProgressEvent
	totalBlocks, successfulBlocks, failedBlocks, fatallyFailedBlocks, mustSucceedBlocks int64
}

// New 构造一个 ManifestPutter：递归遍历输入树，为每个叶子构造对应的
// C4。若任何子 C4 构造失败，调用 cancel-and-finish 并把错误返回给调用方。
func New(
	tree map[string]*types.ManifestNode,
	defaultName string,
	callerURI types.URI,
	bucketFactory collab.BucketFactory,
	client Client,
	events EventProducer,
	logger log.Logger,
	cfg *manifestconfig.Config,
) (*ManifestPutter, error) {
	if cfg == nil {
		cfg = manifestconfig.New(nil)
	}
	p := &ManifestPutter{
		runningHandlers:     map[*PutHandler]struct{}{},
		waitingForMetadata:  map[*PutHandler]struct{}{},
		waitingForBlockSets: map[*PutHandler]struct{}{},
		defaultName:         defaultName,
		callerURI:           callerURI,
		bucketFactory:       bucketFactory,
		client:              client,
		logger:              logger,
		cfg:                 cfg,
		events:              events,
	}

	built, err := p.buildHandlerTree(tree)
	if err != nil {
		p.cancelAndFinish()
		return nil, err
	}
	p.handlerTree = built
	return p, nil
}

func (p *ManifestPutter) buildHandlerTree(tree map[string]*types.ManifestNode) (map[string]*handlerNode, error) {
	out := map[string]*handlerNode{}
	for name, node := range tree {
		switch node.Kind() {
		case types.NodeKindLeaf:
			el := node.AsLeaf()
			if err := el.Validate(); err != nil {
				return nil, err
			}
			var h *PutHandler
			if el.IsRedirect() {
				h = NewStaticPutHandler(p, name, el.TargetURI, el.MimeType, p.logger)
			} else {
				h = NewActivePutHandler(p, name, el.Data, el.MimeType, p.cfg.GetInlineMetadataThreshold(), p.logger)
				p.runningHandlers[h] = struct{}{}
				p.waitingForMetadata[h] = struct{}{}
				p.waitingForBlockSets[h] = struct{}{}
				p.totalSize += el.Size
				p.numberOfFiles++
			}
			out[name] = &handlerNode{leaf: h}
		case types.NodeKindSubtree:
			children, err := p.buildHandlerTree(node.AsSubtree())
			if err != nil {
				return nil, err
			}
			out[name] = &handlerNode{subtree: children}
		}
	}
	return out, nil
}

// Start 遍历 running-put-handlers 的快照并逐一启动。任何一个启动失败，
// 取消并结束整个 ManifestPutter，把错误返回给调用方。
func (p *ManifestPutter) Start() error {
	p.mu.Lock()
	snapshot := make([]*PutHandler, 0, len(p.runningHandlers))
	for h := range p.runningHandlers {
		snapshot = append(snapshot, h)
	}
	// 没有活跃叶子（全是静态重定向）：没有 HandlerSucceeded 回调会
	// 把 inserted-all-files 置位，这里直接置位，再进入清单组装。
	if len(snapshot) == 0 {
		p.insertedAllFiles = true
	}
	p.mu.Unlock()

	if len(snapshot) == 0 {
		p.maybeGotAllMetadata()
	}

	for _, h := range snapshot {
		if err := h.Start(); err != nil {
			p.cancelAndFinish()
			return err
		}
	}
	return nil
}

// TotalSize 返回构造时固定的总字节数
func (p *ManifestPutter) TotalSize() int64 { return p.totalSize }

// NumberOfFiles 返回构造时固定的文件数
func (p *ManifestPutter) NumberOfFiles() int { return p.numberOfFiles }

// FinalURI 返回清单插入产生的最终 URI；在 onGeneratedURI 触发之前为空
func (p *ManifestPutter) FinalURI() types.URI {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalURI
}

// ---- ManifestPutterCallbacks 实现：来自 C4 的回调 ----

// HandlerSucceeded 从 running-put-handlers 移除该叶子；若集合清空，
// 标记 inserted-all-files 并尝试完成。
func (p *ManifestPutter) HandlerSucceeded(h *PutHandler) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	delete(p.runningHandlers, h)
	empty := len(p.runningHandlers) == 0
	if empty {
		p.insertedAllFiles = true
	}
	shouldComplete := empty && p.checkCompleteLocked()
	p.mu.Unlock()

	if shouldComplete {
		p.complete()
	}
}

// HandlerFailed 转发到 fail(err)
func (p *ManifestPutter) HandlerFailed(h *PutHandler, err error) {
	p.fail(err)
}

// HandlerGotMetadata 从 waiting-for-metadata 移除该叶子；若集合清空，
// 触发 gotAllMetadata。
func (p *ManifestPutter) HandlerGotMetadata(h *PutHandler) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	delete(p.waitingForMetadata, h)
	empty := len(p.waitingForMetadata) == 0
	p.mu.Unlock()

	if empty {
		p.maybeGotAllMetadata()
	}
}

// HandlerBlockSetFinished 从 waiting-for-block-sets 移除该叶子；
// 若所有叶子块集都已确定，检查是否也要和元数据块集一起向上转发。
func (p *ManifestPutter) HandlerBlockSetFinished(h *PutHandler) {
	p.mu.Lock()
	delete(p.waitingForBlockSets, h)
	allLeavesFinal := len(p.waitingForBlockSets) == 0
	shouldForward := allLeavesFinal && p.metadataBlockSetFinalized && !p.blockSetFinalizedSent
	if shouldForward {
		p.blockSetFinalizedSent = true
	}
	p.mu.Unlock()

	if shouldForward {
		p.publishBlockSetFinalized()
	}
}

// ---- 进度统计钩子：这里是顶层，直接累积并发布事件 ----

func (p *ManifestPutter) AddBlock() { p.addBlocks(1) }

func (p *ManifestPutter) AddBlocks(n int) { p.addBlocks(int64(n)) }

func (p *ManifestPutter) addBlocks(n int64) {
	p.mu.Lock()
	p.totalBlocks += n
	p.mu.Unlock()
	p.publishProgress()
}

func (p *ManifestPutter) CompletedBlock(wasSuccessful bool) {
	p.mu.Lock()
	if wasSuccessful {
		p.successfulBlocks++
	}
	p.mu.Unlock()
	p.publishProgress()
}

func (p *ManifestPutter) FailedBlock() {
	p.mu.Lock()
	p.failedBlocks++
	p.mu.Unlock()
	p.publishProgress()
}

func (p *ManifestPutter) FatallyFailedBlock() {
	p.mu.Lock()
	p.fatallyFailedBlocks++
	p.mu.Unlock()
	p.publishProgress()
}

func (p *ManifestPutter) AddMustSucceedBlocks(n int) {
	p.mu.Lock()
	p.mustSucceedBlocks += int64(n)
	p.mu.Unlock()
	p.publishProgress()
}

func (p *ManifestPutter) publishProgress() {
	if p.events == nil {
		return
	}
	p.mu.Lock()
	ev := SplitfileProgressEvent{
		Total:             p.totalBlocks,
		Successful:        p.successfulBlocks,
		Failed:            p.failedBlocks,
		FatallyFailed:     p.fatallyFailedBlocks,
		MinSuccess:        p.mustSucceedBlocks,
		BlockSetFinalized: p.blockSetFinalizedSent,
	}
	p.mu.Unlock()
	p.events.PublishSplitfileProgress(ev)
}

func (p *ManifestPutter) publishBlockSetFinalized() {
	p.publishProgress()
}

// ---- gotAllMetadata：把所有叶子元数据组装为清单，插入最终清单块 ----

func (p *ManifestPutter) maybeGotAllMetadata() {
	p.mu.Lock()
	if p.finished || p.hasMetadataInserterState {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.gotAllMetadata()
}

func (p *ManifestPutter) gotAllMetadata() {
	p.mu.Lock()
	tree := p.handlerTree
	p.mu.Unlock()

	metaTree, flat, err := buildMetadataTree(tree)
	if err != nil {
		p.fail(err)
		return
	}

	defaultBytes, err := p.pickDefaultDocument(flat)
	if err != nil {
		p.fail(err)
		return
	}
	if defaultBytes != nil {
		metaTree[""] = defaultBytes
	}

	serialized, err := json.Marshal(metaTree)
	if err != nil {
		p.fail(err)
		return
	}

	bucket, err := p.bucketFactory.MakeImmutableBucket(serialized)
	if err != nil {
		p.fail(ErrBucketError)
		return
	}

	inserter := NewMemoryInserter(p, bucket, "", p.callerURI, false, p.logger)
	p.mu.Lock()
	p.currentMetadataInserterState = inserter.State()
	p.hasMetadataInserterState = true
	p.mu.Unlock()

	if err := inserter.Start(); err != nil {
		p.fail(err)
	}
}

// pickDefaultDocument 实现 spec 4.5 step 2：显式 default-name 未命中
// 即 INVALID_URI；未显式指定则依次尝试常见默认文档名；一个都不命中
// 时返回 (nil, nil)，清单不含默认条目。
func (p *ManifestPutter) pickDefaultDocument(flat map[string][]byte) ([]byte, error) {
	if p.defaultName != "" {
		bytes, ok := flat[p.defaultName]
		if !ok {
			return nil, ErrInvalidURI
		}
		return bytes, nil
	}
	for _, candidate := range defaultDocumentCandidates {
		if bytes, ok := flat[candidate]; ok {
			return bytes, nil
		}
	}
	return nil, nil
}

// buildMetadataTree 递归地把 handlerTree 转成 names -> bytes|subtree 的
// 映射，同时产出一个用 '/' 连接路径的扁平索引，供默认文档查找使用。
// 每个叶子的 metadata 必须非 nil（不变式：只在 waiting-for-metadata
// 清空之后才会调用到这里）。
func buildMetadataTree(tree map[string]*handlerNode) (map[string]interface{}, map[string][]byte, error) {
	out := map[string]interface{}{}
	flat := map[string][]byte{}
	if err := walkMetadataTree(tree, "", out, flat); err != nil {
		return nil, nil, err
	}
	return out, flat, nil
}

func walkMetadataTree(tree map[string]*handlerNode, prefix string, out map[string]interface{}, flat map[string][]byte) error {
	for name, node := range tree {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		if node.leaf != nil {
			meta := node.leaf.Metadata()
			if meta == nil {
				return ErrInternal
			}
			out[name] = meta
			flat[path] = meta
			continue
		}
		sub := map[string]interface{}{}
		if err := walkMetadataTree(node.subtree, path, sub, flat); err != nil {
			return err
		}
		out[name] = sub
	}
	return nil
}

// ---- InserterParent 实现：终态回调，来自清单自身的插入器 ----

// OnEncode 记录 final-URI，发出 onGeneratedURI
func (p *ManifestPutter) OnEncode(key types.Key, uri types.URI, state InserterState) {
	p.mu.Lock()
	p.finalURI = uri
	p.mu.Unlock()
	if p.client != nil {
		p.client.OnGeneratedURI(uri, p)
	}
}

// OnMetadata 在清单级插入器上是意外的——清单本身永远不走内联元数据
// 路径（构造时 allowInlineMetadata=false），因此这条分支在结构上
// 不可达；一旦触发即视为违反协议不变式。
func (p *ManifestPutter) OnMetadata(meta []byte, state InserterState) {
	p.fail(ErrInternal)
}

// OnInsertSuccess 设置 inserted-manifest；若 inserted-all-files 也已
// 设置且尚未完成，调用 complete()。
func (p *ManifestPutter) OnInsertSuccess(state InserterState) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.insertedManifest = true
	shouldComplete := p.checkCompleteLocked()
	p.mu.Unlock()

	if shouldComplete {
		p.complete()
	}
}

// OnInsertFailure 转发到 fail(err)
func (p *ManifestPutter) OnInsertFailure(err error, state InserterState) {
	p.fail(err)
}

// OnTransition 仅当 old 匹配当前记录的清单插入器状态时更新；否则记录
// 日志——这表示并发状态记账出现了 bug。
func (p *ManifestPutter) OnTransition(old, new InserterState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasMetadataInserterState && p.currentMetadataInserterState == old {
		p.currentMetadataInserterState = new
		return
	}
	if p.logger != nil {
		p.logger.Warnf("insert: manifest putter 收到不匹配的状态迁移回调")
	}
}

// OnBlockSetFinished 设置 metadata-block-set-finalized；若所有叶子
// 块集也已确定，向上转发一次。
func (p *ManifestPutter) OnBlockSetFinished(state InserterState) {
	p.mu.Lock()
	p.metadataBlockSetFinalized = true
	allLeavesFinal := len(p.waitingForBlockSets) == 0
	shouldForward := allLeavesFinal && !p.blockSetFinalizedSent
	if shouldForward {
		p.blockSetFinalizedSent = true
	}
	p.mu.Unlock()

	if shouldForward {
		p.publishBlockSetFinalized()
	}
}

// ---- 完成、失败、取消 ----

// checkCompleteLocked 必须在持锁状态下调用：原子地检查并设置 finished，
// 以保证 complete() 恰好触发一次。返回值为真时调用方必须在解锁之后
// 调用 complete()（complete() 本身不得在锁内调用，避免跨外部调用持锁）。
func (p *ManifestPutter) checkCompleteLocked() bool {
	if p.finished {
		return false
	}
	if p.insertedAllFiles && p.insertedManifest {
		p.finished = true
		return true
	}
	return false
}

func (p *ManifestPutter) complete() {
	p.completionOnce.Do(func() {
		if p.client != nil {
			p.client.OnSuccess(p)
		}
	})
}

// fail 调用 cancel-and-finish，然后恰好一次地调用客户端的 onFailure。
func (p *ManifestPutter) fail(err error) {
	p.cancelAndFinish()
	p.completionOnce.Do(func() {
		if p.client != nil {
			p.client.OnFailure(err, p)
		}
	})
}

// cancelAndFinish 在锁内设置 finished=true（对 finished 幂等），
// 快照正在运行的叶子，然后在锁外逐一取消。多次调用产生与调用一次
// 相同的可观察行为。
func (p *ManifestPutter) cancelAndFinish() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	p.finished = true
	snapshot := make([]*PutHandler, 0, len(p.runningHandlers))
	for h := range p.runningHandlers {
		snapshot = append(snapshot, h)
	}
	p.mu.Unlock()

	for _, h := range snapshot {
		h.Cancel()
	}
}

// ModuleName 实现 metrics.MemoryReporter
func (p *ManifestPutter) ModuleName() string { return "insert" }

// CollectMemoryStats 实现 metrics.MemoryReporter
func (p *ManifestPutter) CollectMemoryStats() metrics.ModuleMemoryStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return metrics.ModuleMemoryStats{
		Module:      "insert",
		Layer:       "L3-Insert",
		Objects:     int64(len(p.runningHandlers)),
		ApproxBytes: p.totalSize,
		QueueLength: int64(len(p.waitingForMetadata)),
	}
}
