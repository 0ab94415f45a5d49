// vm/engine.go
// 结算引擎：按金库串行化、在 overlay 视图上执行 handler、
// 成功后把整个写集原子落库。失败的请求不产生任何持久写入。
package vm

import (
	"encoding/json"
	"sync"

	"custody/config"
	"custody/keys"
	"custody/logs"
	"custody/utils"
	"custody/vault"
)

// NonceIndexer 已用 request id 的内存索引，提交成功后增量维护
type NonceIndexer interface {
	MarkUsed(vaultHex string, requestID uint64, admin bool)
}

// Engine 结算引擎
type Engine struct {
	db       DBManager
	registry *HandlerRegistry
	cfg      *config.CustodyConfig

	// 可选：nonce 位图索引（nil 表示不维护）
	nonceIndex NonceIndexer

	// 每个金库一把锁：同一金库的结算严格串行，不同金库并行
	mu         sync.Mutex
	vaultLocks map[vault.AccountID]*sync.Mutex
}

// NewEngine 创建结算引擎，注册全部内置 handler
func NewEngine(db DBManager, cfg *config.CustodyConfig) *Engine {
	return &Engine{
		db:         db,
		registry:   DefaultRegistry(cfg),
		cfg:        cfg,
		vaultLocks: make(map[vault.AccountID]*sync.Mutex),
	}
}

// SetNonceIndexer 挂载 nonce 位图索引
func (e *Engine) SetNonceIndexer(idx NonceIndexer) {
	e.nonceIndex = idx
}

// Registry 暴露注册表，允许挂额外 handler
func (e *Engine) Registry() *HandlerRegistry {
	return e.registry
}

// lockFor 取请求对应金库的锁。initialize 的金库地址从种子预先派生，
// 同一种子的并发创建也会被串行化。
func (e *Engine) lockFor(req *Request) *sync.Mutex {
	vaultID := req.VaultID()
	if vaultID.IsZero() && req.Initialize != nil {
		vaultID, _ = utils.DeriveAddress([]byte("vault"), []byte(req.Initialize.VaultSeed))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.vaultLocks[vaultID]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.vaultLocks[vaultID] = l
	return l
}

// Execute 执行一次结算请求。
// 返回的回执总是非 nil（除非请求本身无法路由）；错误与回执的
// FAILED 状态同时出现，调用方可只看其一。
func (e *Engine) Execute(req *Request) (*Receipt, error) {
	kind, err := KindOf(req)
	if err != nil {
		return nil, err
	}
	handler, ok := e.registry.Get(kind)
	if !ok {
		return nil, ErrUnknownKind
	}

	lock := e.lockFor(req)
	lock.Lock()
	defer lock.Unlock()

	sv := NewStateView(e.db.Get, e.db.Scan)
	now := nowUnix()

	receipt, err := handler.Apply(req, sv, now)
	if err != nil {
		if receipt != nil {
			logs.Warn("settlement failed: kind=%s vault=%s req=%d err=%v tag=%d",
				kind, receipt.Vault, receipt.RequestID, err, receipt.AuditTag)
			e.persistReceipt(receipt)
		}
		return receipt, err
	}

	// 整个写集一个事务落库：批量提现的原子性就在这一步
	diff := sv.Diff()
	if err := e.db.ApplyDiff(diff); err != nil {
		logs.Error("apply diff failed: kind=%s err=%v", kind, err)
		return receipt.fail(err)
	}
	receipt.WriteCount = len(diff)

	// 提交成功后增量维护 nonce 索引
	if e.nonceIndex != nil {
		for _, op := range diff {
			if op.Category != CategoryNonce || op.Del {
				continue
			}
			if vaultHex, requestID, admin, ok := keys.ParseNonceKey(op.Key); ok {
				e.nonceIndex.MarkUsed(vaultHex, requestID, admin)
			}
		}
	}

	e.persistReceipt(receipt)
	logs.Info("settlement succeed: kind=%s vault=%s req=%d signers=%d writes=%d tag=%d",
		kind, receipt.Vault, receipt.RequestID, receipt.ValidSigners, receipt.WriteCount, receipt.AuditTag)
	return receipt, nil
}

// persistReceipt 回执是诊断数据，走异步写队列即可，不参与结算原子性
func (e *Engine) persistReceipt(r *Receipt) {
	raw, err := json.Marshal(r)
	if err != nil {
		logs.Error("marshal receipt failed: %v", err)
		return
	}
	vaultHex := r.Vault
	if len(vaultHex) > 2 && vaultHex[:2] == "0x" {
		vaultHex = vaultHex[2:]
	}
	e.db.EnqueueSet(keys.KeyReceipt(vaultHex, r.Kind, r.RequestID), string(raw))
}
