package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/embedding"
	"github.com/kitadake/concierge/internal/database"
	"github.com/kitadake/concierge/knowledge"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// Knowledge Seed Command
// =============================================================================

// runSeed 导入命令：把 JSON 文件里的知识条目写入语料表。条目缺
// 向量时默认跳过并告警；带 --embed 则先用配置的 Provider 批量
// 向量化再入库。ID 为空的条目入库时自动生成 UUID。
func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "JSON file with knowledge entries (required)")
	embedMissing := fs.Bool("embed", false, "Embed entries that carry no vector")
	fs.Parse(args)

	if *file == "" {
		fatalf("Usage: concierge seed --file <entries.json> [--config <path>] [--embed]")
	}

	cfg := mustLoadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	data, err := os.ReadFile(*file)
	if err != nil {
		fatalf("Failed to read entries file: %v", err)
	}
	var entries []types.KnowledgeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		fatalf("Failed to parse entries file: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No entries to seed")
		return
	}

	ctx := context.Background()

	// 缺向量的条目：--embed 时补齐，否则跳过
	if *embedMissing {
		provider, err := embedding.Build(embedding.Options{
			Provider:          cfg.Embedding.Provider,
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Timeout:           cfg.Embedding.Timeout,
			TargetDimensions:  cfg.Embedding.TargetDimensions,
			DimensionStrategy: cfg.Embedding.DimensionStrategy,
			RateLimitRPS:      cfg.Embedding.RateLimitRPS,
			RateLimitBurst:    cfg.Embedding.RateLimitBurst,
		}, logger)
		if err != nil {
			fatalf("Failed to init embedding provider: %v", err)
		}
		var missing []int
		var texts []string
		for i := range entries {
			if len(entries[i].Embedding) == 0 {
				missing = append(missing, i)
				texts = append(texts, entries[i].Content)
			}
		}
		if len(missing) > 0 {
			vecs, err := provider.EmbedDocuments(ctx, texts)
			if err != nil {
				fatalf("Failed to embed %d entries: %v", len(missing), err)
			}
			for j, i := range missing {
				entries[i].Embedding = vecs[j]
			}
		}
	} else {
		kept := entries[:0]
		skipped := 0
		for _, e := range entries {
			if len(e.Embedding) == 0 {
				skipped++
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
		if skipped > 0 {
			logger.Warn("skipping entries without embeddings, rerun with --embed to vectorize them",
				zap.Int("skipped", skipped))
		}
		if len(entries) == 0 {
			fmt.Println("No entries with embeddings to seed")
			return
		}
	}

	pool, err := database.OpenPool(cfg.Database.Driver, cfg.Database.DSN(), database.PoolConfig{
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

	if err := store.Insert(ctx, entries); err != nil {
		fatalf("Failed to insert entries: %v", err)
	}

	fmt.Printf("Seeded %d entries\n", len(entries))
}
