package bucket

import "errors"

var (
	// ErrEmptyData 拒绝把零字节数据装进一个不可变桶
	ErrEmptyData = errors.New("bucket: data is empty")
	// ErrBuildPathFailed 分片路径构建失败（哈希长度异常）
	ErrBuildPathFailed = errors.New("bucket: failed to build sharded path")
)
