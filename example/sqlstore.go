package example

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/xiaoxuxiansheng/go3pc"
)

// SQLStore 基于 gorm 的后端存储实现，满足引擎要求的四项通用能力
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{
		db: db,
	}
}

// Validate 只校验语句本身的合法性（非空），不触碰已持久化的数据
func (s *SQLStore) Validate(ctx context.Context, statements []string) error {
	for i, statement := range statements {
		if strings.TrimSpace(statement) == "" {
			return fmt.Errorf("empty statement at index: %d", i)
		}
	}
	return nil
}

// Prepare 打开一笔未提交的写事务：应用全部语句但保留提交点。
// 任何一条语句执行失败都立即回滚，不留下挂起写入
func (s *SQLStore) Prepare(ctx context.Context, statements []string) (go3pc.PendingWrite, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	for _, statement := range statements {
		if err := tx.Exec(statement).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	return &sqlPendingWrite{tx: tx}, nil
}

// 挂起在 PRE_COMMIT 与最终决议之间的未提交写事务
type sqlPendingWrite struct {
	tx *gorm.DB
}

func (w *sqlPendingWrite) Commit(ctx context.Context) error {
	return w.tx.Commit().Error
}

func (w *sqlPendingWrite) Rollback(ctx context.Context) error {
	return w.tx.Rollback().Error
}
