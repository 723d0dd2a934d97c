package fetch

import "github.com/prometheus/client_golang/prometheus"

var fetchRetryOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "fetch",
	Name:      "retry_outcome_total",
	Help:      "retry() 调用按结果分类的次数：retried / exhausted / decode_error",
}, []string{"outcome"})

var fetchChooseKeyOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "fetch",
	Name:      "choose_key_outcome_total",
	Help:      "chooseKey() 调用按结果分类的次数：ready / cooldown / recently_failed / success",
}, []string{"outcome"})

var fetchCooldownDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "node",
	Subsystem: "fetch",
	Name:      "cooldown_duration_seconds",
	Help:      "进入有限冷却时设置的冷却时长",
	Buckets:   prometheus.DefBuckets,
})

func init() {
	prometheus.MustRegister(fetchRetryOutcome, fetchChooseKeyOutcome, fetchCooldownDuration)
}
