// Package badger 提供 BadgerDB 存储层的配置
package badger

// Options BadgerDB 存储配置选项
type Options struct {
	// Path 数据目录；InMemory 为真时忽略
	Path string `json:"path"`
	// InMemory 为真时使用纯内存模式，不落盘
	InMemory bool `json:"in_memory"`
	// SyncWrites 控制每次写入是否同步刷盘
	SyncWrites bool `json:"sync_writes"`
}

// Config BadgerDB 存储配置实现
type Config struct {
	options *Options
}

// New 创建 BadgerDB 存储配置
func New(userConfig interface{}) *Config {
	// TODO: 当有用户配置类型时，在这里进行转换和合并
	return &Config{options: createDefaultOptions()}
}

func createDefaultOptions() *Options {
	return &Options{
		Path:       defaultPath,
		InMemory:   defaultInMemory,
		SyncWrites: defaultSyncWrites,
	}
}

// GetOptions 获取完整的配置选项
func (c *Config) GetOptions() *Options { return c.options }

// GetPath 获取数据目录
func (c *Config) GetPath() string { return c.options.Path }

// IsInMemory 报告是否使用纯内存模式
func (c *Config) IsInMemory() bool { return c.options.InMemory }

// IsSyncWritesEnabled 报告是否同步刷盘
func (c *Config) IsSyncWritesEnabled() bool { return c.options.SyncWrites }
