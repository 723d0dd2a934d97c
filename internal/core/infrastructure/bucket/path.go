package bucket

import (
	"encoding/hex"
	"path/filepath"
)

// buildShardedPath 把内容哈希映射为一个三级分片路径：
// {hash[0:2]}/{hash[2:4]}/{fullHash}，避免单个目录下堆积过多文件。
func buildShardedPath(contentHash []byte) string {
	hashHex := hex.EncodeToString(contentHash)
	if len(hashHex) < 4 {
		return ""
	}
	return filepath.Join(hashHex[0:2], hashHex[2:4], hashHex)
}
