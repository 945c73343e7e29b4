package go3pc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 事务日志条目：以事务 id 为 key，记录最近一次状态、时间戳与序列化后的变更语句，
// 足以还原当时尝试执行的内容；该基线不含协调者侧的全局决议记录，不足以支撑宕机恢复
type LogEntry struct {
	TXID       string    `json:"txID"`
	State      TXState   `json:"state"`
	Statements []string  `json:"statements"`
	CreatedAt  time.Time `json:"createdAt"`
}

// 参与者维度的事务日志存储模块，只追加不修改
type TXLog interface {
	// 追加一条状态记录
	Append(ctx context.Context, entry *LogEntry) error
	// 获取指定事务最近一次记录的状态
	Last(ctx context.Context, txID string) (*LogEntry, error)
	// 按追加顺序获取指定事务的全量记录
	Entries(ctx context.Context, txID string) ([]*LogEntry, error)
}

// 进程内的事务日志实现，参与者未显式注入日志存储时的默认选择
type MemoryTXLog struct {
	mux     sync.Mutex
	entries map[string][]*LogEntry
}

func NewMemoryTXLog() *MemoryTXLog {
	return &MemoryTXLog{
		entries: make(map[string][]*LogEntry),
	}
}

func (m *MemoryTXLog) Append(ctx context.Context, entry *LogEntry) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries[entry.TXID] = append(m.entries[entry.TXID], entry)
	return nil
}

func (m *MemoryTXLog) Last(ctx context.Context, txID string) (*LogEntry, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	entries := m.entries[txID]
	if len(entries) == 0 {
		return nil, fmt.Errorf("txlog: no entry for txid: %s", txID)
	}
	return entries[len(entries)-1], nil
}

func (m *MemoryTXLog) Entries(ctx context.Context, txID string) ([]*LogEntry, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	entries := make([]*LogEntry, 0, len(m.entries[txID]))
	entries = append(entries, m.entries[txID]...)
	return entries, nil
}
