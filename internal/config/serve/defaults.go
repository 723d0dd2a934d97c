package serve

const (
	defaultHTL                           = 18
	defaultMaxTransferRetrySubscriptions = 1
)
