package dao

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/xiaoxuxiansheng/go3pc"
)

type TXRecordPO struct {
	gorm.Model
	TXID       string `gorm:"column:tx_id;index"`
	State      string `gorm:"column:state"`
	Statements string `gorm:"column:statements"`
}

func (t TXRecordPO) TableName() string {
	return "tx_record"
}

func (t TXRecordPO) toEntry() (*go3pc.LogEntry, error) {
	var statements []string
	if t.Statements != "" {
		if err := json.Unmarshal([]byte(t.Statements), &statements); err != nil {
			return nil, err
		}
	}
	return &go3pc.LogEntry{
		TXID:       t.TXID,
		State:      go3pc.TXState(t.State),
		Statements: statements,
		CreatedAt:  t.CreatedAt,
	}, nil
}

// TXRecordDAO 落库版的参与者事务日志，实现引擎的 TXLog 契约。
// 记录只追加不更新，一笔事务对应多行，行序即状态扭转顺序
type TXRecordDAO struct {
	db *gorm.DB
}

func NewTXRecordDAO(db *gorm.DB) (*TXRecordDAO, error) {
	if err := db.AutoMigrate(&TXRecordPO{}); err != nil {
		return nil, err
	}
	return &TXRecordDAO{
		db: db,
	}, nil
}

// Append 追加一条状态记录
func (t *TXRecordDAO) Append(ctx context.Context, entry *go3pc.LogEntry) error {
	body, err := json.Marshal(entry.Statements)
	if err != nil {
		return err
	}
	return t.db.WithContext(ctx).Model(&TXRecordPO{}).Create(&TXRecordPO{
		TXID:       entry.TXID,
		State:      entry.State.String(),
		Statements: string(body),
	}).Error
}

// Last 获取指定事务最近一次记录的状态
func (t *TXRecordDAO) Last(ctx context.Context, txID string) (*go3pc.LogEntry, error) {
	var record TXRecordPO
	if err := t.db.WithContext(ctx).Model(&TXRecordPO{}).Where("tx_id = ?", txID).Order("id desc").First(&record).Error; err != nil {
		return nil, err
	}
	return record.toEntry()
}

// Entries 按追加顺序获取指定事务的全量记录
func (t *TXRecordDAO) Entries(ctx context.Context, txID string) ([]*go3pc.LogEntry, error) {
	records, err := t.GetTXRecords(ctx, WithTXID(txID))
	if err != nil {
		return nil, err
	}

	entries := make([]*go3pc.LogEntry, 0, len(records))
	for _, record := range records {
		entry, err := record.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (t *TXRecordDAO) GetTXRecords(ctx context.Context, opts ...QueryOption) ([]*TXRecordPO, error) {
	db := t.db.WithContext(ctx).Model(&TXRecordPO{}).Order("id asc")
	for _, opt := range opts {
		db = opt(db)
	}

	var records []*TXRecordPO
	return records, db.Scan(&records).Error
}
