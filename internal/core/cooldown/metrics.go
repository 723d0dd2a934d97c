package cooldown

import "github.com/prometheus/client_golang/prometheus"

var cooldownRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "cooldown",
	Name:      "removed_total",
	Help:      "获取器从冷却追踪器移除的次数",
})

func init() {
	prometheus.MustRegister(cooldownRemovedTotal)
}
