package serve

// SenderStatus 枚举下游 RequestSender 可能报告的终态/中间状态。
type SenderStatus int

const (
	StatusNotFinished SenderStatus = iota
	StatusDataNotFound
	StatusGeneratedRejectedOverload
	StatusTimedOut
	StatusInternalError
	StatusRouteNotFound
	StatusSuccess
	StatusVerifyFailure
	StatusTransferFailed
)

// WaitStatusMask 是叠加在 SenderStatus 之上的比特标志。
type WaitStatusMask int

const (
	WaitRejectedOverload WaitStatusMask = 1 << iota
	WaitTransferringData
)

// HandlerState 枚举请求处理器状态机的三个状态；转换是单向的，不存在环。
type HandlerState int

const (
	StateInitialize HandlerState = iota
	StateWaitForFirstReply
	StateFinished
)
