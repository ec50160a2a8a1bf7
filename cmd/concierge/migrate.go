package main

import (
	"flag"
	"fmt"

	"github.com/kitadake/concierge/internal/database"
	"github.com/kitadake/concierge/knowledge"
	"github.com/kitadake/concierge/memory"
)

// =============================================================================
// Database Migration Command
// =============================================================================

// runMigrate 建表命令：知识语料表 + 晋升记录表。GORM AutoMigrate
// 只做增量变更（补表、补列、补索引），不会 drop 或改写已有数据，
// 重复执行是安全的。serve 启动时也会跑同样的迁移，这个命令给
// 部署流水线在发布前单独建表用。
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	driver := fs.String("driver", "", "Override database driver (postgres, mysql, sqlite)")
	dsn := fs.String("dsn", "", "Override database connection string")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath)

	dbDriver := cfg.Database.Driver
	dbDSN := cfg.Database.DSN()
	if *driver != "" {
		dbDriver = *driver
	}
	if *dsn != "" {
		dbDSN = *dsn
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	pool, err := database.OpenPool(dbDriver, dbDSN, database.PoolConfig{
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger)
	if err != nil {
		fatalf("Failed to open database: %v", err)
	}
	defer pool.Close()

	store, err := knowledge.NewStore(pool, logger)
	if err != nil {
		fatalf("Failed to init knowledge store: %v", err)
	}
	if err := store.AutoMigrate(); err != nil {
		fatalf("Knowledge schema migration failed: %v", err)
	}

	durable, err := memory.NewDurableStore(pool, logger)
	if err != nil {
		fatalf("Failed to init durable store: %v", err)
	}
	if err := durable.AutoMigrate(); err != nil {
		fatalf("Promotion schema migration failed: %v", err)
	}

	fmt.Printf("Migrations applied (%s)\n", dbDriver)
}
