// Package bucket 实现一个内容寻址的磁盘存储，充当核心状态机消费、
// 不实现的 collab.BucketFactory/collab.Bucket 契约的具体落地。
//
// 🎯 核心职责：
// - 把任意字节切片按内容哈希幂等地落盘（相同内容只写一次）
// - 返回一个可重复打开只读句柄的 collab.Bucket
//
// 💡 设计特点：
// - 并发安全：写路径用 Mutex 保护检查-写入的原子性；一旦落盘，文件
//   按内容寻址不可变，读路径不需要再持锁
// - 幂等性：与其说"覆盖写"，不如说"跳过已存在的内容"
package bucket

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	bucketconfig "github.com/veilnet/node/internal/config/bucket"
	"github.com/veilnet/node/pkg/interfaces/collab"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/metrics"
)

// Store 是 collab.BucketFactory 的磁盘实现。
type Store struct {
	mu      sync.Mutex
	rootDir string
	logger  log.Logger

	storedCount int64 // 仅用于 CollectMemoryStats，不追求精确
}

// New 创建一个根目录已就位的磁盘桶存储
func New(cfg *bucketconfig.Config, logger log.Logger) (*Store, error) {
	if cfg == nil {
		cfg = bucketconfig.New(nil)
	}
	if err := os.MkdirAll(cfg.GetRootDir(), 0o755); err != nil {
		return nil, fmt.Errorf("bucket: 创建根目录失败: %w", err)
	}
	return &Store{rootDir: cfg.GetRootDir(), logger: logger}, nil
}

var _ collab.BucketFactory = (*Store)(nil)

// MakeImmutableBucket 实现 collab.BucketFactory：按内容哈希把数据幂等地
// 落盘，返回一个指向该文件的只读桶句柄。
func (s *Store) MakeImmutableBucket(data []byte) (collab.Bucket, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}

	sum := sha256.Sum256(data)
	rel := buildShardedPath(sum[:])
	if rel == "" {
		return nil, ErrBuildPathFailed
	}
	full := filepath.Join(s.rootDir, rel)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(full); err == nil {
		if s.logger != nil {
			s.logger.Debugf("📦 bucket: 内容已存在，跳过存储: %s", rel)
		}
		return &diskBucket{path: full, size: int64(len(data))}, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("bucket: 检查内容是否存在失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("bucket: 创建分片目录失败: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("bucket: 写入内容失败: %w", err)
	}
	s.storedCount++
	if s.logger != nil {
		s.logger.Debugf("✅ bucket: 内容已存储: %s (size: %d bytes)", rel, len(data))
	}

	return &diskBucket{path: full, size: int64(len(data))}, nil
}

// diskBucket 是 collab.Bucket 的磁盘实现：指向一个不可变文件。
type diskBucket struct {
	path string
	size int64
}

var _ collab.Bucket = (*diskBucket)(nil)

func (b *diskBucket) Size() int64 { return b.size }

func (b *diskBucket) NewReader() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("bucket: 打开内容失败: %w", err)
	}
	return f, nil
}

// ModuleName 实现 metrics.MemoryReporter
func (s *Store) ModuleName() string { return "infrastructure.bucket" }

// CollectMemoryStats 实现 metrics.MemoryReporter。桶存储本身不在内存里
// 缓存内容——每次 MakeImmutableBucket 都直接落盘——这里只报告累计写入次数。
func (s *Store) CollectMemoryStats() metrics.ModuleMemoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return metrics.ModuleMemoryStats{
		Module:  "infrastructure.bucket",
		Layer:   "L2-Infrastructure",
		Objects: s.storedCount,
	}
}
