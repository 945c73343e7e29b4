package go3pc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaoxuxiansheng/go3pc/log"
)

// 参与者：一个后端存储加上它本地的提交协议状态机。
// 参与者独占自己的存储句柄与挂起写入，协调者只通过公开方法访问参与者
type Participant struct {
	id    string
	store Store

	// 串行化全部阶段调用的互斥锁，每次调用全程持有
	mux   sync.Mutex
	state TXState
	// 挂起写入，仅在本地状态为 PRE_COMMIT 期间非空，
	// 进入 COMMIT 或 ABORT 时清空
	pending PendingWrite

	txLog  TXLog
	logger log.Logger
}

func NewParticipant(id string, store Store, opts ...ParticipantOption) *Participant {
	p := &Participant{
		id:    id,
		store: store,
		state: StateInit,
	}

	for _, opt := range opts {
		opt(p)
	}

	repairParticipant(p)
	return p
}

// ID 返回参与者唯一 id
func (p *Participant) ID() string {
	return p.id
}

// State 返回本地状态，供事务结束后的观测与诊断使用
func (p *Participant) State() TXState {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.state
}

// HoldsPending 返回当前是否持有挂起写入
func (p *Participant) HoldsPending() bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.pending != nil
}

// Log 返回参与者的事务日志存储
func (p *Participant) Log() TXLog {
	return p.txLog
}

// CanCommit 第一阶段：校验全部变更语句的合法性，不触碰已持久化的数据。
// 校验通过才追加事务日志并投 YES；任何非法语句或内部故障都折算成 NO，
// 此时不落日志
func (p *Participant) CanCommit(ctx context.Context, tx *Transaction) Vote {
	p.mux.Lock()
	defer p.mux.Unlock()

	if err := p.store.Validate(ctx, tx.Statements); err != nil {
		p.logger.Errorf("participant: %s can-commit rejected, txid: %s, err: %v", p.id, tx.TXID, fmt.Errorf("%w: %v", ErrVoteRejected, err))
		p.state = StateAbort
		return VoteNo
	}

	p.state = StateCanCommit
	tx.moveTo(StateCanCommit)

	// 只有 YES 路径写日志
	if err := p.appendLog(ctx, tx); err != nil {
		p.logger.Errorf("participant: %s can-commit log append failed, txid: %s, err: %v", p.id, tx.TXID, fmt.Errorf("%w: %v", ErrResourceFault, err))
		p.state = StateAbort
		return VoteNo
	}

	p.logger.Infof("participant: %s vote YES, txid: %s", p.id, tx.TXID)
	return VoteYes
}

// PreCommit 第二阶段：打开一笔独占的未提交写入，应用全部变更语句但保留最终提交点。
// 前置条件是本地状态为 CAN_COMMIT，否则视为协议时序违规，投 NO 且无任何副作用
func (p *Participant) PreCommit(ctx context.Context, tx *Transaction) Vote {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.state != StateCanCommit {
		p.logger.Warnf("participant: %s pre-commit out of order, state: %s, txid: %s, err: %v", p.id, p.state, tx.TXID, ErrProtocolViolation)
		return VoteNo
	}

	pending, err := p.store.Prepare(ctx, tx.Statements)
	if err != nil {
		p.logger.Errorf("participant: %s pre-commit failed, txid: %s, err: %v", p.id, tx.TXID, fmt.Errorf("%w: %v", ErrPrepareFailed, err))
		p.state = StateAbort
		return VoteNo
	}

	p.pending = pending
	p.state = StatePreCommit
	tx.moveTo(StatePreCommit)

	// 此处刻意不写事务日志：日志与刚打开的未提交写入落在同一份存储上，
	// 立即落盘会和持有中的写锁冲突，留待 do-commit / abort 阶段补记
	p.logger.Infof("participant: %s ACK, txid: %s", p.id, tx.TXID)
	return VoteACK
}

// DoCommit 第三阶段：落定挂起写入并补记 COMMIT 日志。不再征集投票。
// 前置条件是本地状态为 PRE_COMMIT，否则记录错误后直接返回，无任何副作用
func (p *Participant) DoCommit(ctx context.Context, tx *Transaction) {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.state != StatePreCommit || p.pending == nil {
		p.logger.Errorf("participant: %s do-commit out of order, state: %s, txid: %s, err: %v", p.id, p.state, tx.TXID, ErrProtocolViolation)
		return
	}

	if err := p.pending.Commit(ctx); err != nil {
		// 落定失败只在本参与者内走中止流程，已提交的参与者不会被回拉，
		// 最终状态分叉是该基线明确保留的缺陷
		p.logger.Errorf("participant: %s do-commit failed, txid: %s, err: %v", p.id, tx.TXID, fmt.Errorf("%w: %v", ErrPartialCommitDivergence, err))
		p.abortLocked(ctx, tx)
		return
	}

	p.pending = nil
	p.state = StateCommit
	tx.moveTo(StateCommit)

	if err := p.appendLog(ctx, tx); err != nil {
		p.logger.Warnf("participant: %s commit log append failed, txid: %s, err: %v", p.id, tx.TXID, err)
	}

	p.logger.Infof("participant: %s committed, txid: %s", p.id, tx.TXID)
}

// Abort 中止事务，任意状态下调用均安全，可重复调用
func (p *Participant) Abort(ctx context.Context, tx *Transaction) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.abortLocked(ctx, tx)
}

func (p *Participant) abortLocked(ctx context.Context, tx *Transaction) {
	if p.pending != nil {
		// 回滚失败只告警，不阻塞中止流程
		if err := p.pending.Rollback(ctx); err != nil {
			p.logger.Warnf("participant: %s rollback failed, txid: %s, err: %v", p.id, tx.TXID, fmt.Errorf("%w: %v", ErrResourceFault, err))
		}
		p.pending = nil
	}

	p.state = StateAbort
	tx.moveTo(StateAbort)

	// 日志追加无条件尝试，失败同样不阻塞状态扭转
	if err := p.appendLog(ctx, tx); err != nil {
		p.logger.Warnf("participant: %s abort log append failed, txid: %s, err: %v", p.id, tx.TXID, err)
	}

	p.logger.Infof("participant: %s aborted, txid: %s", p.id, tx.TXID)
}

func (p *Participant) appendLog(ctx context.Context, tx *Transaction) error {
	return p.txLog.Append(ctx, &LogEntry{
		TXID:       tx.TXID,
		State:      p.state,
		Statements: tx.Statements,
		CreatedAt:  time.Now(),
	})
}
