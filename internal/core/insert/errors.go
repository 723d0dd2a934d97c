package insert

import "errors"

// 清单拼装阶段错误
var (
	// ErrInvalidURI 表示调用方显式指定的 default-name 在清单中找不到
	ErrInvalidURI = errors.New("insert: default document not found")

	// ErrBucketError 表示序列化清单到桶时发生 I/O 失败
	ErrBucketError = errors.New("insert: bucket factory I/O failure")

	// ErrInternal 表示协议不变式被违反，例如清单级插入器意外收到
	// on-metadata 回调
	ErrInternal = errors.New("insert: internal protocol invariant violation")
)

// Put Handler / 插入器层错误
var (
	ErrMetadataAlreadySet = errors.New("insert: metadata already assigned, refusing to reassign")
	ErrCancelled          = errors.New("insert: cancelled")
)
