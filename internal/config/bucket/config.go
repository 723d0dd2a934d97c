// Package bucket 提供内容寻址桶存储（collab.BucketFactory 的磁盘实现）的配置
package bucket

// Options 桶存储配置选项
type Options struct {
	// RootDir 分片路径的根目录，布局为 {hash[0:2]}/{hash[2:4]}/{fullHash}
	RootDir string `json:"root_dir"`
}

// Config 桶存储配置实现
type Config struct {
	options *Options
}

// New 创建桶存储配置
func New(userConfig interface{}) *Config {
	// TODO: 当有用户配置类型时，在这里进行转换和合并
	return &Config{options: createDefaultOptions()}
}

func createDefaultOptions() *Options {
	return &Options{RootDir: defaultRootDir}
}

// GetOptions 获取完整的配置选项
func (c *Config) GetOptions() *Options { return c.options }

// GetRootDir 获取分片存储的根目录
func (c *Config) GetRootDir() string { return c.options.RootDir }
