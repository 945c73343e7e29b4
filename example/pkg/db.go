package pkg

import (
	"fmt"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const dsn = ""

var (
	db     *gorm.DB
	dbonce sync.Once
)

// NewSQLiteDB 打开一个文件型 sqlite 库，demo 中的三份银行副本即由此创建
func NewSQLiteDB(path string, opts ...gorm.Option) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), opts...)
}

// NewMySQLDB 打开 mysql 库，线上部署时参与者的数据与事务日志通常落在这里
func NewMySQLDB(dsn string, opts ...gorm.Option) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), opts...)
}

func GetDB() *gorm.DB {
	dbonce.Do(func() {
		var err error
		if db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{}); err != nil {
			panic(fmt.Errorf("failed to connect database, err: %w", err))
		}
	})
	return db
}
