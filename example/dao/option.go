package dao

import (
	"github.com/xiaoxuxiansheng/go3pc"
	"gorm.io/gorm"
)

type QueryOption func(db *gorm.DB) *gorm.DB

func WithTXID(txID string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tx_id = ?", txID)
	}
}

func WithState(state go3pc.TXState) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("state = ?", state.String())
	}
}
