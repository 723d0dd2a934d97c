package badger

import (
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
)

// Transaction 包装一个 BadgerDB 事务，实现 storage.BadgerTransaction
type Transaction struct {
	txn *badgerdb.Txn
}

// Get 获取指定键的值
func (t *Transaction) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set 设置键值对
func (t *Transaction) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

// SetWithTTL 设置键值对并指定过期时间
func (t *Transaction) SetWithTTL(key, value []byte, ttl time.Duration) error {
	entry := badgerdb.NewEntry(key, value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return t.txn.SetEntry(entry)
}

// Delete 删除指定键的值
func (t *Transaction) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// Exists 检查键是否存在
func (t *Transaction) Exists(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if err == badgerdb.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Merge 原子性地合并键的现有值与新值；现有值不存在时 mergeFunc 收到 nil
func (t *Transaction) Merge(key, value []byte, mergeFunc func(existingVal, newVal []byte) []byte) error {
	existing, err := t.Get(key)
	if err != nil {
		return err
	}
	return t.txn.Set(key, mergeFunc(existing, value))
}
