// Package serve 提供请求处理器状态机（C6）的配置
package serve

// Options 请求处理器配置选项
type Options struct {
	// DefaultHTL 在源端没有提供 htl 时使用的保底值
	DefaultHTL int `json:"default_htl"`

	// MaxTransferRetrySubscriptions 限制 VERIFY_FAILURE/TRANSFER_FAILED
	// 一次性重订阅门闩允许的最大重订阅次数；达到之后 VERIFY_FAILURE
	// 回复本地 REJECTED-OVERLOAD，TRANSFER_FAILED 不回复
	MaxTransferRetrySubscriptions int `json:"max_transfer_retry_subscriptions"`
}

// Config 请求处理器配置实现
type Config struct {
	options *Options
}

// New 创建请求处理器配置
func New(userConfig interface{}) *Config {
	// TODO: 当有用户配置类型时，在这里进行转换和合并
	return &Config{options: createDefaultOptions()}
}

func createDefaultOptions() *Options {
	return &Options{
		DefaultHTL:                    defaultHTL,
		MaxTransferRetrySubscriptions: defaultMaxTransferRetrySubscriptions,
	}
}

// GetOptions 获取完整的配置选项
func (c *Config) GetOptions() *Options { return c.options }

// GetDefaultHTL 获取默认 HTL
func (c *Config) GetDefaultHTL() int { return c.options.DefaultHTL }

// GetMaxTransferRetrySubscriptions 获取一次性重订阅门闩的上限
func (c *Config) GetMaxTransferRetrySubscriptions() int {
	return c.options.MaxTransferRetrySubscriptions
}
