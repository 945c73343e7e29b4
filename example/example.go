package example

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/demdxx/gocast"
	"gorm.io/gorm"

	"github.com/xiaoxuxiansheng/go3pc"
	"github.com/xiaoxuxiansheng/go3pc/example/dao"
	"github.com/xiaoxuxiansheng/go3pc/example/pkg"
)

const replicaCnt = 3

// demo：创建三份 sqlite 银行副本，跑一笔转账事务，打印前后对账报告，最后清理临时库文件。
// 这里只是引擎公开操作的薄封装调用方，不含任何协议逻辑
func main() {
	paths := make([]string, 0, replicaCnt)
	dbs := make([]*gorm.DB, 0, replicaCnt)

	coordinator := go3pc.NewCoordinator("coordinator")

	for i := 1; i <= replicaCnt; i++ {
		path := fmt.Sprintf("bank_replica_%d.db", i)
		db, err := pkg.NewSQLiteDB(path)
		if err != nil {
			fmt.Println(err)
			return
		}

		if err := seedAccounts(db); err != nil {
			fmt.Println(err)
			return
		}

		// 事务日志与数据落在同一份副本库中，日志写入的时机与挂起写入互相隔离
		txRecordDAO, err := dao.NewTXRecordDAO(db)
		if err != nil {
			fmt.Println(err)
			return
		}

		coordinator.Register(go3pc.NewParticipant(
			fmt.Sprintf("replica_%d", i),
			NewSQLStore(db),
			go3pc.WithTXLog(txRecordDAO),
		))

		paths = append(paths, path)
		dbs = append(dbs, db)
	}

	defer cleanup(dbs, paths)

	fmt.Println("=== before ===")
	for i, db := range dbs {
		printBalances(fmt.Sprintf("replica_%d", i+1), db)
	}

	// Alice 给 Bob 转账 100
	tx := go3pc.NewTransaction(
		"UPDATE accounts SET balance = balance - 100 WHERE id = 1",
		"UPDATE accounts SET balance = balance + 100 WHERE id = 2",
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if ok := coordinator.ExecuteTransaction(ctx, tx); !ok {
		fmt.Println("tx failed")
		return
	}

	fmt.Println("=== after ===")
	for i, db := range dbs {
		printBalances(fmt.Sprintf("replica_%d", i+1), db)
	}

	for _, participant := range coordinator.Participants() {
		entry, err := participant.Log().Last(ctx, tx.TXID)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Printf("%s: state: %s, logged: %s\n", participant.ID(), participant.State(), entry.State)
	}
}

func seedAccounts(db *gorm.DB) error {
	statements := []string{
		"CREATE TABLE IF NOT EXISTS accounts (id INTEGER PRIMARY KEY, name TEXT NOT NULL, balance REAL NOT NULL)",
		"INSERT INTO accounts VALUES (1, 'Alice', 1000.0)",
		"INSERT INTO accounts VALUES (2, 'Bob', 500.0)",
		"INSERT INTO accounts VALUES (3, 'Charlie', 750.0)",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

func printBalances(replica string, db *gorm.DB) {
	var rows []map[string]interface{}
	if err := db.Raw("SELECT name, balance FROM accounts ORDER BY id").Scan(&rows).Error; err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("[%s]\n", replica)
	for _, row := range rows {
		fmt.Printf("  %s: %.2f\n", gocast.ToString(row["name"]), gocast.ToFloat64(row["balance"]))
	}
}

func cleanup(dbs []*gorm.DB, paths []string) {
	for _, db := range dbs {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	for _, path := range paths {
		_ = os.Remove(path)
	}
}
