// Package fetch 提供单密钥获取器（C2）的配置
package fetch

import "time"

// Options 单密钥获取器配置选项
type Options struct {
	// CooldownRetries 决定 choose-key 在遇到 recently-failed 时的分支：
	// 当剩余重试预算达到或超过这个阈值（或本身无界），命中会被折算为
	// 冷却而不是直接失败。
	CooldownRetries int64 `json:"cooldown_retries"`

	// DefaultCooldownTries 未从 fetch-context 读到覆盖值时使用的
	// cachedCooldownTries 默认值
	DefaultCooldownTries int64 `json:"default_cooldown_tries"`

	// DefaultCooldownTime 未从 fetch-context 读到覆盖值时使用的
	// cachedCooldownTime 默认值
	DefaultCooldownTime time.Duration `json:"default_cooldown_time"`
}

// Config 单密钥获取器配置实现
type Config struct {
	options *Options
}

// New 创建单密钥获取器配置
func New(userConfig interface{}) *Config {
	// TODO: 当有用户配置类型时，在这里进行转换和合并
	return &Config{options: createDefaultOptions()}
}

func createDefaultOptions() *Options {
	return &Options{
		CooldownRetries:      defaultCooldownRetries,
		DefaultCooldownTries: defaultCooldownTries,
		DefaultCooldownTime:  defaultCooldownTime,
	}
}

// GetOptions 获取完整的配置选项
func (c *Config) GetOptions() *Options { return c.options }

// GetCooldownRetries 获取冷却重试阈值 COOLDOWN_RETRIES
func (c *Config) GetCooldownRetries() int64 { return c.options.CooldownRetries }

// GetDefaultCooldownTries 获取默认的 cachedCooldownTries
func (c *Config) GetDefaultCooldownTries() int64 { return c.options.DefaultCooldownTries }

// GetDefaultCooldownTime 获取默认的 cachedCooldownTime
func (c *Config) GetDefaultCooldownTime() time.Duration { return c.options.DefaultCooldownTime }
