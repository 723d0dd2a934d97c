package serve

import "github.com/prometheus/client_golang/prometheus"

var serveRepliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "serve",
	Name:      "replies_total",
	Help:      "C6 发出的线协议回复，按消息种类分类",
}, []string{"kind"})

var serveTerminalStatusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "serve",
	Name:      "terminal_status_total",
	Help:      "请求处理器到达 _finally() 时的终态 sender 状态分布",
}, []string{"status"})

var serveSentBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "serve",
	Name:      "sent_bytes_total",
	Help:      "经由请求处理器发出的字节数，按 chk/ssk 与 successful/remote 分类",
}, []string{"key_kind", "outcome"})

var serveReceivedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "node",
	Subsystem: "serve",
	Name:      "received_bytes_total",
	Help:      "请求处理器接收的字节数，按 chk/ssk 与 successful/remote 分类",
}, []string{"key_kind", "outcome"})

func init() {
	prometheus.MustRegister(serveRepliesTotal, serveTerminalStatusTotal, serveSentBytes, serveReceivedBytes)
}
