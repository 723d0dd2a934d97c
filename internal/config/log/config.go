// Package log 提供日志子系统的配置
package log

// Options 日志配置选项
type Options struct {
	// Level 日志级别：debug/info/warn/error/fatal
	Level string `json:"level"`
	// Encoding 编码方式：console 或 json
	Encoding string `json:"encoding"`
	// OutputPath 输出路径："stdout"、"stderr" 或文件路径
	OutputPath string `json:"output_path"`
}

// Config 日志配置实现
type Config struct {
	options *Options
}

// New 创建日志配置
func New(userConfig interface{}) *Config {
	// TODO: 当有用户配置类型时，在这里进行转换和合并
	return &Config{options: createDefaultOptions()}
}

func createDefaultOptions() *Options {
	return &Options{
		Level:      defaultLevel,
		Encoding:   defaultEncoding,
		OutputPath: defaultOutputPath,
	}
}

// GetOptions 获取完整的配置选项
func (c *Config) GetOptions() *Options { return c.options }

// GetLevel 获取日志级别
func (c *Config) GetLevel() string { return c.options.Level }

// GetEncoding 获取编码方式
func (c *Config) GetEncoding() string { return c.options.Encoding }

// GetOutputPath 获取输出路径
func (c *Config) GetOutputPath() string { return c.options.OutputPath }
