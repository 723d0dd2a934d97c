// Package insert 提供清单插入子系统（C3-C5）的配置
package insert

// Options 清单插入子系统配置选项
type Options struct {
	// InlineMetadataThreshold 低于该大小的叶子数据内联进元数据，
	// 而不是单独插入为一个块
	InlineMetadataThreshold int64 `json:"inline_metadata_threshold"`
}

// Config 清单插入子系统配置实现
type Config struct {
	options *Options
}

// New 创建清单插入子系统配置
func New(userConfig interface{}) *Config {
	// TODO: 当有用户配置类型时，在这里进行转换和合并
	return &Config{options: createDefaultOptions()}
}

func createDefaultOptions() *Options {
	return &Options{
		InlineMetadataThreshold: defaultInlineMetadataThreshold,
	}
}

// GetOptions 获取完整的配置选项
func (c *Config) GetOptions() *Options { return c.options }

// GetInlineMetadataThreshold 获取内联元数据阈值
func (c *Config) GetInlineMetadataThreshold() int64 { return c.options.InlineMetadataThreshold }
