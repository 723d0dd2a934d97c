package types

import (
	"errors"
	"sort"
	"strings"

	"github.com/veilnet/node/pkg/interfaces/collab"
)

// ErrNameCollision 表示 flatten/unflatten 过程中，中间路径分量
// 与某个文件名发生了冲突（一个名字既是子树又是叶子）。
var ErrNameCollision = errors.New("types: manifest path component collides with a file name")

// ErrEmptyManifestElement 表示叶子既没有目标 URI，也没有数据桶
var ErrEmptyManifestElement = errors.New("types: manifest element has neither target URI nor data bucket")

// ManifestElement 是清单树的叶子内容：{name, 可选目标URI, 可选数据桶,
// 可选显式MIME, size}。target-URI 与 data-bucket 二者恰有其一被设置。
// name 中不含 '/'。
type ManifestElement struct {
	Name      string
	TargetURI URI // 静态重定向目标；与 Data 互斥
	Data      collab.Bucket
	MimeType  string // 显式声明的 MIME；为空则由外部收集器猜测
	Size      int64
}

// IsRedirect 报告该叶子是否为静态重定向（无需插入的数据）
func (e ManifestElement) IsRedirect() bool {
	return e.TargetURI != ""
}

// Validate 检查 target-URI / data-bucket 二选一的不变式
func (e ManifestElement) Validate() error {
	hasURI := e.TargetURI != ""
	hasData := e.Data != nil
	if hasURI == hasData {
		return ErrEmptyManifestElement
	}
	return nil
}

// ManifestNode 是清单树的一个节点：要么是叶子，要么是子树。
// 用标签化联合体表示递归和：node = leaf(element) | subtree(map<string,node>)。
// 刻意不依赖运行时类型断言来区分二者，调用方应使用 Kind 与访问器。
type ManifestNode struct {
	leaf    *ManifestElement
	subtree map[string]*ManifestNode
}

// NodeKind 标记 ManifestNode 的具体形态
type NodeKind int

const (
	NodeKindLeaf NodeKind = iota
	NodeKindSubtree
)

// Leaf 构造一个叶子节点
func Leaf(e ManifestElement) *ManifestNode {
	return &ManifestNode{leaf: &e}
}

// Subtree 构造一个子树节点
func Subtree(children map[string]*ManifestNode) *ManifestNode {
	if children == nil {
		children = map[string]*ManifestNode{}
	}
	return &ManifestNode{subtree: children}
}

// Kind 返回节点种类
func (n *ManifestNode) Kind() NodeKind {
	if n.leaf != nil {
		return NodeKindLeaf
	}
	return NodeKindSubtree
}

// AsLeaf 返回叶子内容；仅在 Kind() == NodeKindLeaf 时有效
func (n *ManifestNode) AsLeaf() *ManifestElement { return n.leaf }

// AsSubtree 返回子树映射；仅在 Kind() == NodeKindSubtree 时有效
func (n *ManifestNode) AsSubtree() map[string]*ManifestNode { return n.subtree }

// FlatEntry 是 flatten 产生的一条记录：'/' 连接的完整路径与叶子
type FlatEntry struct {
	Path    string
	Element ManifestElement
}

// Flatten 递归遍历清单树，将每个叶子的路径用 '/' 连接后展平成列表。
func Flatten(tree map[string]*ManifestNode) []FlatEntry {
	var out []FlatEntry
	flattenInto(tree, "", &out)
	// 保持确定性顺序，便于测试断言
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flattenInto(tree map[string]*ManifestNode, prefix string, out *[]FlatEntry) {
	for name, node := range tree {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		switch node.Kind() {
		case NodeKindLeaf:
			*out = append(*out, FlatEntry{Path: path, Element: *node.AsLeaf()})
		case NodeKindSubtree:
			flattenInto(node.AsSubtree(), path, out)
		}
	}
}

// Unflatten 把 Flatten 产生的列表重建为清单树。每条记录的 Path 按 '/'
// 拆分；中间路径分量若与某个已存在的文件名冲突，返回 ErrNameCollision。
func Unflatten(entries []FlatEntry) (map[string]*ManifestNode, error) {
	root := map[string]*ManifestNode{}
	for _, entry := range entries {
		parts := strings.Split(entry.Path, "/")
		cur := root
		for _, part := range parts[:len(parts)-1] {
			existing, ok := cur[part]
			if !ok {
				existing = Subtree(nil)
				cur[part] = existing
			} else if existing.Kind() == NodeKindLeaf {
				return nil, ErrNameCollision
			}
			cur = existing.AsSubtree()
		}
		leafName := parts[len(parts)-1]
		if existing, ok := cur[leafName]; ok && existing.Kind() == NodeKindSubtree {
			return nil, ErrNameCollision
		}
		e := entry.Element
		e.Name = leafName
		cur[leafName] = Leaf(e)
	}
	return root, nil
}

// TotalSize 递归求和所有叶子 data-bucket 的 Size（重定向叶子不贡献大小）
func TotalSize(tree map[string]*ManifestNode) int64 {
	var total int64
	for _, node := range tree {
		switch node.Kind() {
		case NodeKindLeaf:
			el := node.AsLeaf()
			if !el.IsRedirect() {
				total += el.Size
			}
		case NodeKindSubtree:
			total += TotalSize(node.AsSubtree())
		}
	}
	return total
}

// CountFiles 递归统计非重定向叶子（即真正参与插入的文件）数量
func CountFiles(tree map[string]*ManifestNode) int {
	var n int
	for _, node := range tree {
		switch node.Kind() {
		case NodeKindLeaf:
			if !node.AsLeaf().IsRedirect() {
				n++
			}
		case NodeKindSubtree:
			n += CountFiles(node.AsSubtree())
		}
	}
	return n
}
