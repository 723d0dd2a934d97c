package cooldown

import "encoding/binary"

// Item 是冷却追踪器中的一条记录：重试计数与最早唤醒时间戳。
// CooldownWakeupTime 是绝对墙钟毫秒值；0 表示"不在冷却中"。
type Item struct {
	RetryCount         int64
	CooldownWakeupTime int64
}

func (it Item) IsInCooldown(nowMillis int64) bool {
	return it.CooldownWakeupTime > nowMillis
}

func encodeItem(it Item) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(it.RetryCount))
	binary.BigEndian.PutUint64(buf[8:16], uint64(it.CooldownWakeupTime))
	return buf
}

func decodeItem(raw []byte) Item {
	if len(raw) < 16 {
		return Item{}
	}
	return Item{
		RetryCount:         int64(binary.BigEndian.Uint64(raw[0:8])),
		CooldownWakeupTime: int64(binary.BigEndian.Uint64(raw[8:16])),
	}
}
