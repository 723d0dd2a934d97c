package types

// URI 是插入一个数据块之后产生的可打印内容地址字符串。
// 一旦发出即不再变化。
type URI string

// IsZero 判断 URI 是否尚未被赋值
func (u URI) IsZero() bool { return u == "" }

func (u URI) String() string { return string(u) }
