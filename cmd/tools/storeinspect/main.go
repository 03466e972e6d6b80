package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/gemdesk/backend/internal/config"
	"github.com/zhouzirui/gemdesk/backend/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	key := flag.String("key", "", "要查看的数据键: chat_sessions, settings 或 gems（默认全部）")
	dataDir := flag.String("dir", cfg.Storage.DataDir, "数据目录")
	flag.Parse()

	cfg.Storage.DataDir = *dataDir
	kv, err := store.OpenPebbleReadOnly(cfg.Storage.StorePath())
	if err != nil {
		log.Fatalf("打开存储失败: %v", err)
	}
	defer kv.Close()

	cipher, err := store.NewCipher(cfg.Storage.StoreSecret())
	if err != nil {
		log.Fatalf("初始化加密失败: %v", err)
	}

	keys := []string{store.KeySessions, store.KeySettings, store.KeyGems}
	if *key != "" {
		keys = []string{*key}
	}

	failed := false
	for _, k := range keys {
		out, err := inspect(kv, cipher, k)
		if err != nil {
			log.Printf("[%s] %v", k, err)
			failed = true
			continue
		}
		fmt.Printf("== %s ==\n%s\n", k, out)
	}
	if failed {
		os.Exit(1)
	}
}

// inspect 解密并格式化一个数据键；无法解密时按旧版明文JSON处理
func inspect(kv store.KV, cipher *store.Cipher, key string) ([]byte, error) {
	raw, err := kv.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return []byte("(empty)"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取失败: %w", err)
	}

	plain, err := cipher.Open(raw)
	if err != nil {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("解密失败: %w", err)
		}
		plain = raw
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, plain, "", "  "); err != nil {
		return nil, fmt.Errorf("JSON格式错误: %w", err)
	}
	return buf.Bytes(), nil
}
