// middleware/middleware.go
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// 每个 IP 在当前时间窗口内的请求次数以及最后一次重置时间
var (
	ipRequestCount = make(map[string]int)
	ipLastReset    = make(map[string]time.Time)
	mu             sync.Mutex
)

const (
	requestLimit    = 2000            // 每个 IP 每个窗口允许的最大请求次数
	resetInterval   = time.Second     // 请求计数的时间窗口
	cleanupInterval = 2 * time.Minute // 不活跃记录的清理间隔
)

// RateLimit 限制每个 IP 在 resetInterval 内的请求次数。
// 结算请求本身有 nonce 防重放，这里只挡住无脑刷接口的客户端。
func RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := strings.Split(r.RemoteAddr, ":")[0]

		mu.Lock()
		now := time.Now()
		if last, ok := ipLastReset[clientIP]; !ok || now.Sub(last) > resetInterval {
			ipRequestCount[clientIP] = 0
			ipLastReset[clientIP] = now
		}

		ipRequestCount[clientIP]++
		if ipRequestCount[clientIP] > requestLimit {
			mu.Unlock()
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// StartIPCleanup 启动后台 goroutine，定时清理不活跃的 IP 记录
func StartIPCleanup() {
	ticker := time.NewTicker(cleanupInterval)
	go func() {
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, last := range ipLastReset {
				if now.Sub(last) > 2*resetInterval {
					delete(ipLastReset, ip)
					delete(ipRequestCount, ip)
				}
			}
			mu.Unlock()
		}
	}()
}
