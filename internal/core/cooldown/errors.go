package cooldown

import "errors"

// 初始化错误
var (
	ErrStoreNil = errors.New("cooldown: badger store is nil")
	ErrClockNil = errors.New("cooldown: clock is nil")
)

// 查询错误
var (
	ErrItemNotFound = errors.New("cooldown: tracker item not found")
)
