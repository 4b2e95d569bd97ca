package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"schedle/internal/config"
	"schedle/internal/models"
	appRedis "schedle/internal/redis"
	"schedle/internal/storage"
)

func usage() {
	fmt.Println("使用方法:")
	fmt.Println("  ./admin keys [prefix]              - 列出分区键, 如 keys friends_")
	fmt.Println("  ./admin show <kind> <userID>       - 显示分区内容")
	fmt.Println("  ./admin clear <kind> <userID>      - 清空分区")
	fmt.Printf("  kind: %v\n", models.PartitionKinds)
}

func main() {
	// 简单命令行参数解析
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(os.Getenv("SCHEDLE_CONFIG"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	ctx := context.Background()
	kv, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("无法连接存储: %v", err)
	}
	parts := storage.NewPartitions(kv, cfg.Storage.KeyPrefix)

	// 执行指定的命令
	switch os.Args[1] {
	case "keys":
		prefix := parts.Prefix()
		if len(os.Args) > 2 {
			prefix += os.Args[2]
		}
		listKeys(ctx, parts.Store(), prefix)

	case "show":
		userID, kind := partitionArgs()
		showPartition(ctx, parts, userID, kind)

	case "clear":
		userID, kind := partitionArgs()
		if err := parts.Clear(ctx, userID, kind); err != nil {
			log.Fatalf("清空分区失败: %v", err)
		}
		fmt.Printf("已清空 %s\n", parts.Key(userID, kind))

	default:
		usage()
		log.Fatalf("未知命令: %s", os.Args[1])
	}
}

func partitionArgs() (string, models.PartitionKind) {
	if len(os.Args) < 4 {
		log.Fatalf("需要指定用户ID和分区类型")
	}
	kind := models.PartitionKind(os.Args[2])
	if !kind.Valid() {
		log.Fatalf("无效的分区类型: %s", os.Args[2])
	}
	return os.Args[3], kind
}

// openStore connects to the configured backend. The memory store is useless
// from a separate process, so it is rejected.
func openStore(ctx context.Context, cfg config.Config) (storage.KVStore, error) {
	switch cfg.Storage.Type {
	case "redis":
		client, err := appRedis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return appRedis.NewKVStore(client), nil
	case "postgres":
		db, err := storage.InitDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		return storage.NewGormKV(db), nil
	}
	return nil, fmt.Errorf("存储类型 %q 不支持离线访问", cfg.Storage.Type)
}

func listKeys(ctx context.Context, kv storage.KVStore, prefix string) {
	keys, err := kv.Keys(ctx, prefix)
	if err != nil {
		log.Fatalf("获取键列表失败: %v", err)
	}
	fmt.Printf("前缀 %q 下共 %d 个键:\n", prefix, len(keys))
	fmt.Println("--------------------------------------")
	for _, k := range keys {
		fmt.Println(k)
	}
}

func showPartition(ctx context.Context, parts *storage.Partitions, userID string, kind models.PartitionKind) {
	raw, found, err := parts.Raw(ctx, userID, kind)
	if err != nil {
		log.Fatalf("读取分区失败: %v", err)
	}
	key := parts.Key(userID, kind)
	if !found {
		fmt.Printf("%s 不存在\n", key)
		return
	}

	fmt.Printf("%s (%d 字节):\n", key, len(raw))
	fmt.Println("--------------------------------------")
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		// 损坏的分区原样输出
		fmt.Printf("无法解析 JSON: %v\n%s\n", err, raw)
		return
	}
	fmt.Println(out.String())
}
