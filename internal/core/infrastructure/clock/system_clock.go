// Package clock 提供 clock.Clock 接口的具体实现
package clock

import (
	"time"

	ifaceclock "github.com/veilnet/node/pkg/interfaces/infrastructure/clock"
)

// SystemClock 使用系统真实时间
type SystemClock struct{}

// NewSystemClock 构造一个系统时钟
func NewSystemClock() ifaceclock.Clock { return &SystemClock{} }

func (c *SystemClock) Now() time.Time                  { return time.Now() }
func (c *SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (c *SystemClock) Unix() int64                     { return time.Now().Unix() }
func (c *SystemClock) UnixNano() int64                 { return time.Now().UnixNano() }
