// Package types 定义请求生命周期子系统共用的数据类型：
// 密钥、数据块、URI 以及清单树。
package types

import "fmt"

// KeyKind 标识密钥的种类
type KeyKind int

const (
	// KeyKindCHK 内容哈希密钥：标识符由插入字节的哈希派生
	KeyKindCHK KeyKind = iota
	// KeyKindSSK 签名子空间密钥：携带一个关联的公钥，用于可变槽位
	KeyKindSSK
)

func (k KeyKind) String() string {
	switch k {
	case KeyKindCHK:
		return "CHK"
	case KeyKindSSK:
		return "SSK"
	default:
		return "UNKNOWN"
	}
}

// Key 是不可变的密钥标识符，CHK 或 SSK 二者之一。
//
// NodeKey 是路由可见的哈希；PubKey 只在 Kind == KeyKindSSK 时有意义。
type Key struct {
	Kind    KeyKind
	NodeKey []byte
	PubKey  []byte // 仅 SSK 使用
}

// NewCHKKey 构造一个内容哈希密钥
func NewCHKKey(nodeKey []byte) Key {
	return Key{Kind: KeyKindCHK, NodeKey: nodeKey}
}

// NewSSKKey 构造一个签名子空间密钥
func NewSSKKey(nodeKey, pubKey []byte) Key {
	return Key{Kind: KeyKindSSK, NodeKey: nodeKey, PubKey: pubKey}
}

// IsSSK 返回该密钥是否为 SSK
func (k Key) IsSSK() bool { return k.Kind == KeyKindSSK }

// String 返回便于日志/调试的简短表示，不构成 URI
func (k Key) String() string {
	return fmt.Sprintf("%s:%x", k.Kind, k.NodeKey)
}

// Equal 比较两个密钥的节点哈希与种类是否一致
func (k Key) Equal(other Key) bool {
	if k.Kind != other.Kind || len(k.NodeKey) != len(other.NodeKey) {
		return false
	}
	for i := range k.NodeKey {
		if k.NodeKey[i] != other.NodeKey[i] {
			return false
		}
	}
	return true
}
