package serve

import "errors"

var (
	// ErrNodeNil 在构造 RequestHandler 时 Node 协作者为空
	ErrNodeNil = errors.New("serve: node collaborator is nil")
	// ErrTransportNil 在构造 RequestHandler 时 PeerTransport 协作者为空
	ErrTransportNil = errors.New("serve: peer transport is nil")
	// ErrHTLExhausted 表示 makeRequestSender 在本地未命中且 HTL 已耗尽
	ErrHTLExhausted = errors.New("serve: htl exhausted, no sender available")
	// ErrUnknownSenderStatus 是未知的下游 sender 状态导致的内部错误，
	// 仍然会把状态机推进到 FINISHED
	ErrUnknownSenderStatus = errors.New("serve: unknown sender status")
	// ErrTransferAlreadyReported 是 shouldHaveStartedTransfer 门闩
	// 检测到的重复 VERIFY_FAILURE/TRANSFER_FAILED 报告
	ErrTransferAlreadyReported = errors.New("serve: verify-failure/transfer-failed reported without intervening transfer start")
)
