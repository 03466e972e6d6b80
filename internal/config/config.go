package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// defaultStoreSecret 是内置的本地存储口令，只防御随手查看，不防御本机攻击者。
const defaultStoreSecret = "gemdesk.local-store.v1"

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	AI      AIConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if cfg.Storage.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.Storage.DataDir = dir
	}

	if cfg.AI.MaxRetries < 0 {
		cfg.AI.MaxRetries = 0
	}

	return cfg, nil
}

// defaultHost 是未指定主机时的监听地址，只接受本机连接。
const defaultHost = "127.0.0.1"

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
	// AllowedOrigins 是允许跨源访问本地服务的 web view 来源。
	AllowedOrigins []string `env:"GEMDESK_ALLOWED_ORIGINS" envSeparator:"," envDefault:"app://gemdesk,http://localhost:5173,http://127.0.0.1:5173"`
}

// StorageConfig 描述本地加密存储与媒体缓存目录。
type StorageConfig struct {
	DataDir    string `env:"GEMDESK_DATA_DIR"`
	Secret     string `env:"GEMDESK_STORE_SECRET" envDefault:"gemdesk.local-store.v1"`
	QuotaBytes int    `env:"GEMDESK_STORE_QUOTA_BYTES" envDefault:"5242880"`
}

// StorePath returns the pebble directory under the data dir.
func (c StorageConfig) StorePath() string {
	return filepath.Join(c.DataDir, "store")
}

// MediaPath returns the media cache directory under the data dir.
func (c StorageConfig) MediaPath() string {
	return filepath.Join(c.DataDir, "media")
}

// StoreSecret returns the configured passphrase, falling back to the embedded one.
func (c StorageConfig) StoreSecret() string {
	if s := strings.TrimSpace(c.Secret); s != "" {
		return s
	}
	return defaultStoreSecret
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	BootstrapAPIKey   string        `env:"GEMINI_API_KEY"`
	BaseURL           string        `env:"GEMINI_BASE_URL"`
	ArkBaseURL        string        `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	DefaultModel      string        `env:"GEMDESK_DEFAULT_MODEL" envDefault:"gemini-2.5-flash"`
	ImageModel        string        `env:"GEMDESK_IMAGE_MODEL" envDefault:"imagen-4.0-generate-001"`
	VideoModel        string        `env:"GEMDESK_VIDEO_MODEL" envDefault:"veo-3.0-generate-001"`
	RetryBaseDelay    time.Duration `env:"GEMDESK_RETRY_BASE_DELAY" envDefault:"2s"`
	MaxRetries        int           `env:"GEMDESK_MAX_RETRIES" envDefault:"3"`
	VideoPollInterval time.Duration `env:"GEMDESK_VIDEO_POLL_INTERVAL" envDefault:"10s"`
	ModelsTTL         time.Duration `env:"GEMDESK_MODELS_TTL" envDefault:"10m"`
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.HasPrefix(port, ":") {
		// ":8080" 同样只绑定本机；需要对外监听时显式写出主机，如 "0.0.0.0:8080"。
		return defaultHost + port, nil
	}
	if strings.Contains(port, ":") {
		return port, nil
	}

	return defaultHost + ":" + port, nil
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("resolve data dir: %w", err)
		}
		base = home
	}
	return filepath.Join(base, "gemdesk"), nil
}
