// cmd/main/main.go
// 托管金库结算服务入口：badger 落库 + 结算引擎 + HTTP/3 API。
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custody/config"
	"custody/crt"
	"custody/db"
	"custody/handlers"
	"custody/logs"
	"custody/middleware"
	"custody/vault"
	"custody/vm"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

func tlsVersion(s string) uint16 {
	switch s {
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS13
	}
}

func main() {
	var configPath string
	var logLevel int
	flag.StringVar(&configPath, "config", "", "JSON 配置文件路径，留空用默认配置")
	flag.IntVar(&logLevel, "loglevel", logs.LevelInfo, "日志级别 0-5")
	flag.Parse()

	logs.SetLevel(logLevel)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logs.Error("load config failed: %v", err)
		os.Exit(1)
	}

	// 1. 数据库与写队列
	dbManager, err := db.NewManagerWithConfig(cfg.Database.Path, logs.Default(), cfg)
	if err != nil {
		logs.Error("init db failed: %v", err)
		os.Exit(1)
	}
	dbManager.InitWriteQueue(cfg.Database.MaxBatchSize, cfg.Database.FlushInterval)

	// 2. 结算引擎，挂上已用 nonce 位图
	vault.SetRecoverCacheSize(cfg.Custody.RecoverCacheSize)
	engine := vm.NewEngine(dbManager, &cfg.Custody)
	engine.SetNonceIndexer(dbManager.NonceIdx)

	// 3. HTTP 处理器与限流
	hm := handlers.NewHandlerManager(dbManager, engine, cfg, logs.Default())
	mux := http.NewServeMux()
	hm.RegisterRoutes(mux)
	handler := middleware.RateLimit(mux)
	middleware.StartIPCleanup()

	// 4. 证书与 TLS / QUIC 配置
	if err := crt.EnsureCert(cfg.Server.CertFile, cfg.Server.KeyFile, cfg.Server.CertValidityDays); err != nil {
		logs.Error("prepare certificate failed: %v", err)
		os.Exit(1)
	}
	cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
	if err != nil {
		logs.Error("load certificate failed: %v", err)
		os.Exit(1)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tlsVersion(cfg.Server.TLSMinVersion),
		MaxVersion:   tlsVersion(cfg.Server.TLSMaxVersion),
		// ALPN：HTTP/3 加 TCP 回退
		NextProtos: []string{"h3", "h3-29", "http/1.1"},
	}
	quicConfig := &quic.Config{
		KeepAlivePeriod: cfg.Server.QUICKeepAlivePeriod,
		MaxIdleTimeout:  cfg.Server.QUICMaxIdleTimeout,
		Allow0RTT:       cfg.Server.QUICAllow0RTT,
	}

	// 5. HTTP/3 服务器，另起一个 TCP TLS 服务器兼容普通客户端
	h3Server := &http3.Server{
		Addr:       ":" + cfg.Server.Port,
		Handler:    handler,
		TLSConfig:  tlsConfig,
		QUICConfig: quicConfig,
	}
	go func() {
		if err := h3Server.ListenAndServe(); err != nil {
			logs.Error("HTTP/3 server stopped: %v", err)
		}
	}()

	tcpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		TLSConfig:    tlsConfig,
		ReadTimeout:  cfg.Server.HTTPTimeout,
		WriteTimeout: cfg.Server.HTTPTimeout,
	}
	go func() {
		if err := tcpServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			logs.Error("TCP TLS server stopped: %v", err)
		}
	}()

	logs.Info("custody service listening on :%s (HTTP/3 + TCP TLS), network id %d",
		cfg.Server.Port, cfg.Custody.NetworkID)

	// 6. 等退出信号，优雅关停：先停服务器，再排空写队列关库
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logs.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = tcpServer.Shutdown(ctx)
	_ = h3Server.Close()
	dbManager.Close()
	logs.Info("bye")
}
