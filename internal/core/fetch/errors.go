package fetch

import "errors"

// 初始化错误
var (
	ErrKeyAbsent    = errors.New("fetch: key is absent, programming error")
	ErrClockNil     = errors.New("fetch: clock is nil")
	ErrTrackerNil   = errors.New("fetch: cooldown tracker is nil")
	ErrSchedulerNil = errors.New("fetch: scheduler is nil")
)

// 运行期错误
var (
	// ErrRecentlyFailed 是合成的低级失败，当节点记忆里这个密钥最近失败过，
	// 且重试预算不足以折算为冷却时抛出
	ErrRecentlyFailed = errors.New("fetch: recently failed")

	// ErrBlockDecodeFailed 表示验证/解码失败，对当前尝试是终态错误
	ErrBlockDecodeFailed = errors.New("fetch: block decode failed")
)
