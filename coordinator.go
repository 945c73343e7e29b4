package go3pc

import (
	"context"

	"github.com/xiaoxuxiansheng/go3pc/log"
)

// 协调者：持有参与者名册并驱动三个阶段。协调者自身不持有任何事务数据，
// 只负责编排，record-of-truth 在各参与者手上
type Coordinator struct {
	id string
	// 名册只追加不移除，注册顺序即各阶段的调用顺序
	participants []*Participant
	opts         *Options
}

func NewCoordinator(id string, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:   id,
		opts: &Options{},
	}

	for _, opt := range opts {
		opt(c.opts)
	}

	repair(c.opts)
	return c
}

// Register 把参与者追加到名册。不做重复 id 检测，由调用方自行保证
func (c *Coordinator) Register(p *Participant) {
	c.participants = append(c.participants, p)
	c.logger().Infof("coordinator: %s registered participant: %s", c.id, p.ID())
}

// Participants 返回名册快照，供事务结束后的状态观测
func (c *Coordinator) Participants() []*Participant {
	participants := make([]*Participant, 0, len(c.participants))
	participants = append(participants, c.participants...)
	return participants
}

// ExecuteTransaction 按名册顺序串行推进三个阶段，返回整体成败。
// 协调者的分支决策只依赖投票值，参与者内部故障不会以 error 形式上抛到这里。
// 同一个协调者实例同一时刻只允许一笔事务在途，并发调用方需自行串行化
func (c *Coordinator) ExecuteTransaction(ctx context.Context, tx *Transaction) bool {
	c.logger().Infof("coordinator: %s tx begin, txid: %s", c.id, tx.TXID)

	// 第一阶段 CAN-COMMIT：要求全票 YES。
	// 任何一票 NO 都对名册内全部参与者执行中止，包括尚未被询问到的
	for _, p := range c.participants {
		if vote := p.CanCommit(ctx, tx); vote != VoteYes {
			c.logger().Warnf("coordinator: %s can-commit rejected by participant: %s, txid: %s", c.id, p.ID(), tx.TXID)
			c.abortAll(ctx, tx)
			return false
		}
	}

	// 第二阶段 PRE-COMMIT：要求全员 ACK
	for _, p := range c.participants {
		if vote := p.PreCommit(ctx, tx); vote != VoteACK {
			c.logger().Warnf("coordinator: %s pre-commit refused by participant: %s, txid: %s", c.id, p.ID(), tx.TXID)
			c.abortAll(ctx, tx)
			return false
		}
	}

	// 第三阶段 DO-COMMIT：不再征集投票，到达 PRE_COMMIT 的参与者默认能够完成。
	// 单个参与者落定失败只在其本地处理，不回传、不回拉其余参与者
	for _, p := range c.participants {
		p.DoCommit(ctx, tx)
	}

	c.logger().Infof("coordinator: %s tx committed, txid: %s", c.id, tx.TXID)
	return true
}

func (c *Coordinator) abortAll(ctx context.Context, tx *Transaction) {
	for _, p := range c.participants {
		p.Abort(ctx, tx)
	}
}

func (c *Coordinator) logger() log.Logger {
	return c.opts.Logger
}
