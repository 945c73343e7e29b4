package go3pc

import "errors"

// 故障分类。参与者内部的故障不会以 error 形式上抛给协调者，
// 而是统一折算成投票值；这些哨兵错误只用于日志与存储实现侧的包装
var (
	// 第一阶段投出 NO
	ErrVoteRejected = errors.New("go3pc: vote rejected")
	// 第二阶段 NO 或执行故障
	ErrPrepareFailed = errors.New("go3pc: prepare failed")
	// 阶段调用不满足前置的本地状态
	ErrProtocolViolation = errors.New("go3pc: protocol violation")
	// 后端存储在校验/准备/提交/回滚过程中发生的 I/O 故障
	ErrResourceFault = errors.New("go3pc: resource fault")
	// 第三阶段部分参与者已提交而另一部分失败，该基线下无法自动修复
	ErrPartialCommitDivergence = errors.New("go3pc: partial commit divergence")
)
