package go3pc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xiaoxuxiansheng/go3pc/log"
)

// 内存 kv 型的后端存储，语句在 commit 时才生效，用于观测各场景下的数据副作用
type mockStore struct {
	mutex     sync.Mutex
	committed []string
	prepares  int
	rollbacks int

	failValidate bool
	failPrepare  bool
	failCommit   bool
	failRollback bool
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) Validate(ctx context.Context, statements []string) error {
	if m.failValidate {
		return errors.New("validate fault")
	}
	for _, statement := range statements {
		if strings.TrimSpace(statement) == "" {
			return errors.New("empty statement")
		}
	}
	return nil
}

func (m *mockStore) Prepare(ctx context.Context, statements []string) (PendingWrite, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.failPrepare {
		return nil, errors.New("prepare fault")
	}
	m.prepares++
	return &mockPendingWrite{store: m, statements: statements}, nil
}

func (m *mockStore) committedStatements() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.committed...)
}

type mockPendingWrite struct {
	store      *mockStore
	statements []string
}

func (w *mockPendingWrite) Commit(ctx context.Context) error {
	w.store.mutex.Lock()
	defer w.store.mutex.Unlock()
	if w.store.failCommit {
		return errors.New("commit fault")
	}
	w.store.committed = append(w.store.committed, w.statements...)
	return nil
}

func (w *mockPendingWrite) Rollback(ctx context.Context) error {
	w.store.mutex.Lock()
	defer w.store.mutex.Unlock()
	if w.store.failRollback {
		return errors.New("rollback fault")
	}
	w.store.rollbacks++
	return nil
}

// 永远追加失败的事务日志
type failingTXLog struct{}

func (f *failingTXLog) Append(ctx context.Context, entry *LogEntry) error {
	return errors.New("append fault")
}

func (f *failingTXLog) Last(ctx context.Context, txID string) (*LogEntry, error) {
	return nil, errors.New("no entry")
}

func (f *failingTXLog) Entries(ctx context.Context, txID string) ([]*LogEntry, error) {
	return nil, errors.New("no entry")
}

func observedLogger(t *testing.T) (log.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return log.NewZapLogger(zap.New(core).Sugar()), logs
}

func Test_participant_can_commit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		statements []string
		store      *mockStore
		txLog      TXLog
		vote       Vote
		state      TXState
		logEntries int
	}{
		{
			name:       "success",
			statements: []string{"stmt-a", "stmt-b"},
			store:      newMockStore(),
			vote:       VoteYes,
			state:      StateCanCommit,
			logEntries: 1,
		},
		{
			name:       "empty_statement",
			statements: []string{"stmt-a", "  "},
			store:      newMockStore(),
			vote:       VoteNo,
			state:      StateAbort,
			logEntries: 0,
		},
		{
			name:       "store_fault",
			statements: []string{"stmt-a"},
			store:      &mockStore{failValidate: true},
			vote:       VoteNo,
			state:      StateAbort,
			logEntries: 0,
		},
		{
			name:       "log_append_fault",
			statements: []string{"stmt-a"},
			store:      newMockStore(),
			txLog:      &failingTXLog{},
			vote:       VoteNo,
			state:      StateAbort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txLog := tt.txLog
			if txLog == nil {
				txLog = NewMemoryTXLog()
			}
			participant := NewParticipant("p", tt.store, WithTXLog(txLog))
			tx := NewTransaction(tt.statements...)

			assert.Equal(t, tt.vote, participant.CanCommit(ctx, tx))
			assert.Equal(t, tt.state, participant.State())

			memLog, ok := txLog.(*MemoryTXLog)
			if !ok {
				return
			}
			entries, err := memLog.Entries(ctx, tx.TXID)
			assert.NoError(t, err)
			assert.Equal(t, tt.logEntries, len(entries))
			if tt.logEntries > 0 {
				assert.Equal(t, StateCanCommit, entries[0].State)
				assert.Equal(t, tt.statements, entries[0].Statements)
			}
		})
	}
}

func Test_participant_pre_commit(t *testing.T) {
	ctx := context.Background()

	t.Run("success_after_can_commit", func(t *testing.T) {
		store := newMockStore()
		participant := NewParticipant("p", store)
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		assert.Equal(t, VoteACK, participant.PreCommit(ctx, tx))
		assert.Equal(t, StatePreCommit, participant.State())
		assert.True(t, participant.HoldsPending())
		// 挂起写入尚未落定，数据不可见
		assert.Empty(t, store.committedStatements())

		// 刻意不落日志：最近一条仍是 CAN_COMMIT
		last, err := participant.Log().Last(ctx, tx.TXID)
		assert.NoError(t, err)
		assert.Equal(t, StateCanCommit, last.State)
	})

	t.Run("out_of_order", func(t *testing.T) {
		store := newMockStore()
		logger, logs := observedLogger(t)
		participant := NewParticipant("p", store, WithParticipantLogger(logger))
		tx := NewTransaction("stmt")

		// 未经过 can-commit，时序违规，无任何副作用
		assert.Equal(t, VoteNo, participant.PreCommit(ctx, tx))
		assert.Equal(t, StateInit, participant.State())
		assert.False(t, participant.HoldsPending())
		assert.Equal(t, 0, store.prepares)
		assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
	})

	t.Run("prepare_fault", func(t *testing.T) {
		store := &mockStore{failPrepare: true}
		participant := NewParticipant("p", store)
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		assert.Equal(t, VoteNo, participant.PreCommit(ctx, tx))
		assert.Equal(t, StateAbort, participant.State())
		assert.False(t, participant.HoldsPending())
	})
}

func Test_participant_do_commit(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		store := newMockStore()
		participant := NewParticipant("p", store)
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		assert.Equal(t, VoteACK, participant.PreCommit(ctx, tx))
		participant.DoCommit(ctx, tx)

		assert.Equal(t, StateCommit, participant.State())
		assert.False(t, participant.HoldsPending())
		assert.Equal(t, []string{"stmt"}, store.committedStatements())

		last, err := participant.Log().Last(ctx, tx.TXID)
		assert.NoError(t, err)
		assert.Equal(t, StateCommit, last.State)
	})

	t.Run("out_of_order", func(t *testing.T) {
		store := newMockStore()
		logger, logs := observedLogger(t)
		participant := NewParticipant("p", store, WithParticipantLogger(logger))
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		// 跳过 pre-commit，属于协议违规，记录错误且无副作用
		participant.DoCommit(ctx, tx)

		assert.Equal(t, StateCanCommit, participant.State())
		assert.Empty(t, store.committedStatements())
		assert.Equal(t, 1, logs.FilterLevelExact(zap.ErrorLevel).Len())
	})

	t.Run("commit_fault_diverges_locally", func(t *testing.T) {
		store := &mockStore{failCommit: true}
		participant := NewParticipant("p", store)
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		assert.Equal(t, VoteACK, participant.PreCommit(ctx, tx))
		participant.DoCommit(ctx, tx)

		// 落定失败转入本地中止流程
		assert.Equal(t, StateAbort, participant.State())
		assert.False(t, participant.HoldsPending())
		assert.Empty(t, store.committedStatements())
		assert.Equal(t, 1, store.rollbacks)
	})
}

func Test_participant_abort(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		store := newMockStore()
		participant := NewParticipant("p", store)
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		assert.Equal(t, VoteACK, participant.PreCommit(ctx, tx))

		participant.Abort(ctx, tx)
		participant.Abort(ctx, tx)

		// 重复中止不产生新的数据副作用，日志允许再次追加
		assert.Equal(t, StateAbort, participant.State())
		assert.Equal(t, 1, store.rollbacks)
		assert.Empty(t, store.committedStatements())

		entries, err := participant.Log().Entries(ctx, tx.TXID)
		assert.NoError(t, err)
		// CAN_COMMIT + 两次 ABORT
		assert.Equal(t, 3, len(entries))
	})

	t.Run("rollback_fault_only_warns", func(t *testing.T) {
		store := &mockStore{failRollback: true}
		logger, logs := observedLogger(t)
		participant := NewParticipant("p", store, WithParticipantLogger(logger))
		tx := NewTransaction("stmt")

		assert.Equal(t, VoteYes, participant.CanCommit(ctx, tx))
		assert.Equal(t, VoteACK, participant.PreCommit(ctx, tx))
		participant.Abort(ctx, tx)

		assert.Equal(t, StateAbort, participant.State())
		assert.False(t, participant.HoldsPending())
		assert.GreaterOrEqual(t, logs.FilterLevelExact(zap.WarnLevel).Len(), 1)
	})

	t.Run("log_append_fault_does_not_block", func(t *testing.T) {
		participant := NewParticipant("p", newMockStore(), WithTXLog(&failingTXLog{}))
		tx := NewTransaction("stmt")

		participant.Abort(ctx, tx)
		assert.Equal(t, StateAbort, participant.State())
		assert.Equal(t, StateAbort, tx.State)
	})
}

// 时序不变式：同一参与者/事务对上，pre-commit 的 ACK 必须以 can-commit 的 YES 为前提
func Test_participant_sequencing_invariant(t *testing.T) {
	ctx := context.Background()

	store := newMockStore()
	participant := NewParticipant("p", store)
	tx := NewTransaction("stmt")

	assert.Equal(t, VoteNo, participant.PreCommit(ctx, tx))

	// can-commit 被拒后 pre-commit 依然不可能 ACK
	rejected := NewParticipant("q", &mockStore{failValidate: true})
	assert.Equal(t, VoteNo, rejected.CanCommit(ctx, tx))
	assert.Equal(t, VoteNo, rejected.PreCommit(ctx, tx))
}
