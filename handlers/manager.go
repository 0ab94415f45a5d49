// handlers/manager.go
package handlers

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"custody/config"
	"custody/db"
	"custody/logs"
	"custody/utils"
	"custody/vm"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// HandlerManager 管理所有 HTTP 处理器及其依赖
type HandlerManager struct {
	dbManager *db.Manager
	engine    *vm.Engine
	cfg       *config.Config

	// 已见票据缓存：按票据哈希指纹快速拒绝重复提交。
	// 权威防重放仍是 nonce 记录，这里只是省一次完整结算路径。
	seenTickets *lru.Cache

	// API 调用计数
	apiCalls uint64

	Logger logs.Logger
}

// NewHandlerManager 创建新的处理器管理器
func NewHandlerManager(
	dbMgr *db.Manager,
	engine *vm.Engine,
	cfg *config.Config,
	logger logs.Logger,
) *HandlerManager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	seenTickets, _ := lru.New(cfg.Server.SeenTicketCacheSize)
	return &HandlerManager{
		dbManager:   dbMgr,
		engine:      engine,
		cfg:         cfg,
		seenTickets: seenTickets,
		Logger:      logger,
	}
}

// RegisterRoutes 注册所有路由
func (hm *HandlerManager) RegisterRoutes(mux *http.ServeMux) {
	// 结算提交
	mux.HandleFunc("/initialize", hm.handleSubmit(vm.KindInitialize))
	mux.HandleFunc("/deposit", hm.handleSubmit(vm.KindDeposit))
	mux.HandleFunc("/createVaultTokenAccount", hm.handleSubmit(vm.KindCreateTokenAcct))
	mux.HandleFunc("/withdraw", hm.handleSubmit(vm.KindWithdraw))
	mux.HandleFunc("/bulkWithdraw", hm.handleSubmit(vm.KindBulkWithdraw))
	mux.HandleFunc("/addAsset", hm.handleSubmit(vm.KindAddAsset))
	mux.HandleFunc("/removeAsset", hm.handleSubmit(vm.KindRemoveAsset))
	mux.HandleFunc("/rotateValidators", hm.handleSubmit(vm.KindRotateValidators))
	mux.HandleFunc("/adminDeposit", hm.handleSubmit(vm.KindAdminDeposit))
	mux.HandleFunc("/adminWithdraw", hm.handleSubmit(vm.KindAdminWithdraw))
	// 只读查询
	mux.HandleFunc("/vault", hm.HandleGetVault)
	mux.HandleFunc("/nonce", hm.HandleGetNonce)
	mux.HandleFunc("/balance", hm.HandleGetBalance)
	mux.HandleFunc("/receipt", hm.HandleGetReceipt)
	mux.HandleFunc("/status", hm.HandleStatus)
}

func (hm *HandlerManager) recordAPICall() {
	atomic.AddUint64(&hm.apiCalls, 1)
}

// ticketFingerprint 计算一条带票据请求的去重指纹：
// siphash(票据哈希) 与请求种类的 murmur 标签异或，
// 同一张票据走普通/管理两条路径时不会互相误伤。
func (hm *HandlerManager) ticketFingerprint(req *vm.Request) (uint64, bool) {
	var hash common.Hash
	switch {
	case req.Withdrawal != nil:
		hash = req.Withdrawal.Hash()
	case req.BulkWithdrawal != nil:
		hash = req.BulkWithdrawal.Hash()
	case req.AddAsset != nil:
		hash = req.AddAsset.Hash()
	case req.RemoveAsset != nil:
		hash = req.RemoveAsset.Hash()
	case req.Rotate != nil:
		hash = req.Rotate.Hash()
	case req.AdminDeposit != nil:
		hash = req.AdminDeposit.Hash()
	case req.AdminWithdrawal != nil:
		hash = req.AdminWithdrawal.Hash()
	default:
		return 0, false
	}
	item := utils.DigestItem(hash)
	return item.Hash() ^ utils.MurmurTag([]byte(req.Kind)), true
}

// ========== 响应辅助 ==========

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Error("[handlers] write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
