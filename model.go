package go3pc

import (
	"time"

	"github.com/google/uuid"
)

// 事务状态
type TXState string

const (
	// 初始态
	StateInit TXState = "INIT"
	// 第一阶段通过
	StateCanCommit TXState = "CAN_COMMIT"
	// 第二阶段通过，持有未提交写入
	StatePreCommit TXState = "PRE_COMMIT"
	// 事务提交完成
	StateCommit TXState = "COMMIT"
	// 事务中止，终态
	StateAbort TXState = "ABORT"
)

func (t TXState) String() string {
	return string(t)
}

// 各状态在推进链路 INIT -> CAN_COMMIT -> PRE_COMMIT -> COMMIT 上的序号
var stateOrder = map[TXState]int{
	StateInit:      0,
	StateCanCommit: 1,
	StatePreCommit: 2,
	StateCommit:    3,
}

// 投票结果。YES/NO 回应第一阶段，ACK/NO 回应第二阶段
type Vote string

const (
	VoteYes Vote = "YES"
	VoteNo  Vote = "NO"
	VoteACK Vote = "ACK"
)

func (v Vote) String() string {
	return string(v)
}

// 事务：一笔分布式工作单元及其状态
type Transaction struct {
	TXID string `json:"txID"`
	// 有序的变更语句序列，每条语句是针对后端存储的一次原子数据变更
	Statements []string  `json:"statements"`
	State      TXState   `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewTransaction 构造一笔事务，构造时不做任何语句校验，校验是第一阶段的职责
func NewTransaction(statements ...string) *Transaction {
	return &Transaction{
		TXID:       uuid.NewString(),
		Statements: statements,
		State:      StateInit,
		CreatedAt:  time.Now(),
	}
}

// moveTo 由当前持有事务的阶段执行流调用。状态只能沿链路单向推进，
// ABORT 可从任意状态进入且不可再离开；一笔事务不支持两个阶段执行流并发持有
func (t *Transaction) moveTo(next TXState) {
	if t.State == StateAbort || t.State == StateCommit {
		return
	}
	if next == StateAbort {
		t.State = StateAbort
		return
	}
	if stateOrder[next] <= stateOrder[t.State] {
		return
	}
	t.State = next
}
