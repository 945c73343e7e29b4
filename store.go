package go3pc

import "context"

// 后端存储需要暴露的通用能力。任何满足该契约的事务型存储（关系库、嵌入式 kv、
// 文件日志）都可以作为参与者的数据底座
type Store interface {
	// 校验一批变更语句的合法性，不触碰任何已持久化的数据
	Validate(ctx context.Context, statements []string) error
	// 打开一笔独占的未提交写入：应用全部变更语句但保留最终提交点。
	// 执行失败时实现方需自行回滚，不得留下挂起写入
	Prepare(ctx context.Context, statements []string) (PendingWrite, error)
}

// 挂起写入：PRE_COMMIT 与最终决议之间持有的未提交变更
type PendingWrite interface {
	// 落定写入
	Commit(ctx context.Context) error
	// 回滚写入
	Rollback(ctx context.Context) error
}
