package cooldown

import "time"

const (
	defaultEntryTTL               = 24 * time.Hour
	defaultReadThroughCacheWindow = 5 * time.Minute
)
