// config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config 主配置结构
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Custody  CustodyConfig
}

// ServerConfig HTTP/3服务器配置
type ServerConfig struct {
	// 监听端口
	Port string // "6100"

	// TLS配置
	TLSMinVersion string // "1.3"
	TLSMaxVersion string // "1.3"
	CertFile      string // "server.crt"
	KeyFile       string // "server.key"

	// QUIC配置
	QUICKeepAlivePeriod time.Duration // 10 * time.Second
	QUICMaxIdleTimeout  time.Duration // 5 * time.Minute
	QUICAllow0RTT       bool          // true

	// HTTP配置
	HTTPTimeout        time.Duration // 30 * time.Second
	MaxRequestBodySize int64         // 10 << 20 (10MB)

	// 证书配置
	CertValidityDays    int // 365
	TLSSessionCacheSize int // 128

	// 已见票据缓存（快速拒绝重复提交，权威判定仍在 nonce 记录）
	SeenTicketCacheSize int // 10000
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// BadgerDB配置
	Path             string        // "./data/custody"
	ValueLogFileSize int64         // 64 << 20 (64MB)
	MaxBatchSize     int           // 100
	FlushInterval    time.Duration // 200 * time.Millisecond

	// 写队列配置
	WriteQueueSize int // 100000
	MaxCountPerTxn int // 500
}

// CustodyConfig 托管金库配置
type CustodyConfig struct {
	// 网络标识，写进每张票据，防止跨环境重放
	NetworkID uint64 // 101

	// 金库硬限制
	MaxSigners     int // 10 (N)
	MaxAssets      int // 20
	MaxBulkTickets int // 20

	// 最小保留额：account 至少保留 ReserveBase + size*ReservePerByte
	ReserveBase    uint64 // 128
	ReservePerByte uint64 // 8

	// nonce 记录固定大小（8 字节判别码 + 1 字节 used）
	NonceAccountSize uint64 // 9

	// 签名识别缓存（(hash,sig) → 地址）
	RecoverCacheSize int // 4096
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                "6100",
			TLSMinVersion:       "1.3",
			TLSMaxVersion:       "1.3",
			CertFile:            "server.crt",
			KeyFile:             "server.key",
			QUICKeepAlivePeriod: 10 * time.Second,
			QUICMaxIdleTimeout:  5 * time.Minute,
			QUICAllow0RTT:       true,
			HTTPTimeout:         30 * time.Second,
			MaxRequestBodySize:  10 << 20,
			CertValidityDays:    365,
			TLSSessionCacheSize: 128,
			SeenTicketCacheSize: 10000,
		},
		Database: DatabaseConfig{
			Path:             "./data/custody",
			ValueLogFileSize: 64 << 20,
			MaxBatchSize:     100,
			FlushInterval:    200 * time.Millisecond,
			WriteQueueSize:   100000,
			MaxCountPerTxn:   500,
		},
		Custody: CustodyConfig{
			NetworkID:        101,
			MaxSigners:       10,
			MaxAssets:        20,
			MaxBulkTickets:   20,
			ReserveBase:      128,
			ReservePerByte:   8,
			NonceAccountSize: 9,
			RecoverCacheSize: 4096,
		},
	}
}

// LoadFromFile 从 JSON 文件加载配置；path 为空或文件不存在时用默认配置
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.MaxBatchSize <= 0 {
		return fmt.Errorf("database max batch size must be positive, got %d", c.Database.MaxBatchSize)
	}
	if c.Database.FlushInterval <= 0 {
		return fmt.Errorf("database flush interval must be positive, got %v", c.Database.FlushInterval)
	}
	if c.Custody.MaxSigners <= 0 || c.Custody.MaxSigners > 255 {
		return fmt.Errorf("max signers must be in [1,255], got %d", c.Custody.MaxSigners)
	}
	if c.Custody.MaxAssets <= 0 {
		return fmt.Errorf("max assets must be positive, got %d", c.Custody.MaxAssets)
	}
	if c.Custody.MaxBulkTickets <= 0 {
		return fmt.Errorf("max bulk tickets must be positive, got %d", c.Custody.MaxBulkTickets)
	}
	if c.Custody.NonceAccountSize == 0 {
		return fmt.Errorf("nonce account size must be positive")
	}
	return nil
}
