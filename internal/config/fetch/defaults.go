package fetch

import "time"

const (
	// defaultCooldownRetries 对应源码中的 COOLDOWN_RETRIES 常量
	defaultCooldownRetries = 3
	defaultCooldownTries   = 1
	defaultCooldownTime    = 30 * time.Second
)
