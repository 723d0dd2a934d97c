// Package badger 提供 BadgerStore 接口的 BadgerDB 实现
package badger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"

	badgerconfig "github.com/veilnet/node/internal/config/storage/badger"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	iface "github.com/veilnet/node/pkg/interfaces/infrastructure/storage"
)

// Store 实现 storage.BadgerStore 接口
type Store struct {
	db     *badgerdb.DB
	config *badgerconfig.Config
	logger log.Logger
}

// New 创建新的 BadgerStore 实例
func New(config *badgerconfig.Config, logger log.Logger) (iface.BadgerStore, error) {
	if config == nil {
		config = badgerconfig.New(nil)
	}

	var opts badgerdb.Options
	if config.IsInMemory() {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		dataDir := config.GetPath()
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("badger: 无法创建数据目录: %w", err)
		}
		opts = badgerdb.DefaultOptions(dataDir)
	}
	opts.SyncWrites = config.IsSyncWritesEnabled()
	opts.Logger = nil // 用自己的 logger 路由，不借用 badger 内建日志

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: 打开数据库失败: %w", err)
	}

	if logger != nil {
		logger.Infof("badger: 已打开存储，path=%s in_memory=%v", config.GetPath(), config.IsInMemory())
	}

	return &Store{db: db, config: config, logger: logger}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

// Get 获取指定键的值
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var valCopy []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger: 获取键失败: %w", err)
	}
	return valCopy, nil
}

// Set 设置键值对
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

// SetWithTTL 设置键值对并指定过期时间
func (s *Store) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(key, value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete 删除指定键的值
func (s *Store) Delete(ctx context.Context, key []byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
}

// Exists 检查键是否存在
func (s *Store) Exists(ctx context.Context, key []byte) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger: 检查键存在性失败: %w", err)
	}
	return exists, nil
}

// GetMany 批量获取多个键的值
func (s *Store) GetMany(ctx context.Context, keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(key)
			if err == badgerdb.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(key)] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: 批量获取键值失败: %w", err)
	}
	return result, nil
}

// SetMany 批量设置多个键值对
func (s *Store) SetMany(ctx context.Context, entries map[string][]byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteMany 批量删除多个键
func (s *Store) DeleteMany(ctx context.Context, keys [][]byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// PrefixScan 按前缀扫描键值对
func (s *Store) PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			keyCopy := append([]byte{}, item.Key()...)
			valCopy, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(keyCopy)] = valCopy
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: 前缀扫描失败: %w", err)
	}
	return result, nil
}

// RangeScan 范围扫描键值对，[startKey, endKey)
func (s *Store) RangeScan(ctx context.Context, startKey, endKey []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(startKey); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(endKey) > 0 && bytes.Compare(k, endKey) >= 0 {
				break
			}
			keyCopy := append([]byte{}, k...)
			valCopy, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(keyCopy)] = valCopy
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: 范围扫描失败: %w", err)
	}
	return result, nil
}

// RunInTransaction 在一个 BadgerDB 事务中执行 fn
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx iface.BadgerTransaction) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&Transaction{txn: txn}); err != nil {
		return err
	}
	return txn.Commit()
}
