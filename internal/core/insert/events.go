package insert

import (
	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
)

// splitfileProgressTopic 是发布 SplitfileProgressEvent 的事件总线主题。
const splitfileProgressTopic = "insert.splitfile.progress"

// SplitfileProgressEvent 是 ManifestPutter 向事件生产者发出的进度事件。
// 事件总线本身的投递与传输语义超出本子系统范围；这里只是它的生产者。
type SplitfileProgressEvent struct {
	Total             int64
	Successful        int64
	Failed            int64
	FatallyFailed     int64
	MinSuccess        int64
	BlockSetFinalized bool
}

// EventProducer 是 ManifestPutter 消费、不实现的事件生产者契约。
type EventProducer interface {
	PublishSplitfileProgress(ev SplitfileProgressEvent)
}

// BusEventProducer 是 EventProducer 的具体实现，包装
// asaskevich/EventBus。所有事件都发布到固定主题 splitfileProgressTopic；
// 每个生产者在构造时生成一个随机 id，供日志/诊断关联。
type BusEventProducer struct {
	bus          evbus.Bus
	subscription uuid.UUID
}

// NewBusEventProducer 创建一个基于 EventBus 的事件生产者
func NewBusEventProducer(bus evbus.Bus) *BusEventProducer {
	return &BusEventProducer{bus: bus, subscription: uuid.New()}
}

// PublishSplitfileProgress 把进度事件发布到总线上
func (p *BusEventProducer) PublishSplitfileProgress(ev SplitfileProgressEvent) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(splitfileProgressTopic, ev)
}

// SubscriptionID 返回该生产者持有的订阅标识，供调用方在日志/诊断中关联
func (p *BusEventProducer) SubscriptionID() uuid.UUID { return p.subscription }
