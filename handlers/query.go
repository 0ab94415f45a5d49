// handlers/query.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"custody/keys"
	"custody/vault"
	"custody/vm"
)

// HandleGetVault 查询金库记录
// GET /vault?id=0x<32字节hex>
func (hm *HandlerManager) HandleGetVault(w http.ResponseWriter, r *http.Request) {
	hm.recordAPICall()

	id, err := vault.ParseAccountID(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vault id: "+err.Error())
		return
	}

	raw, err := hm.dbManager.Get(keys.KeyVault(id.Hex()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}

	var v vault.Vault
	if err := json.Unmarshal(raw, &v); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt vault record: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &v)
}

type nonceResponse struct {
	Vault     string `json:"vault"`
	RequestID uint64 `json:"request_id"`
	Admin     bool   `json:"admin"`
	Used      bool   `json:"used"`
}

// HandleGetNonce 查询某个 request id 是否已被消耗
// GET /nonce?vault=0x<hex>&request_id=<n>[&admin=1]
//
// 先查内存位图（快），位图说没用过再落盘确认一次，
// 避免重建窗口期间位图落后造成误判。
func (hm *HandlerManager) HandleGetNonce(w http.ResponseWriter, r *http.Request) {
	hm.recordAPICall()
	q := r.URL.Query()

	id, err := vault.ParseAccountID(q.Get("vault"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vault id: "+err.Error())
		return
	}
	requestID, err := strconv.ParseUint(q.Get("request_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request_id")
		return
	}
	admin := q.Get("admin") == "1" || q.Get("admin") == "true"

	resp := nonceResponse{Vault: id.String(), RequestID: requestID, Admin: admin}

	if hm.dbManager.NonceIdx != nil && hm.dbManager.NonceIdx.IsUsed(id.Hex(), requestID, admin) {
		resp.Used = true
		writeJSON(w, http.StatusOK, &resp)
		return
	}

	key := keys.KeyNonce(id.Hex(), requestID)
	if admin {
		key = keys.KeyAdminNonce(id.Hex(), requestID)
	}
	raw, err := hm.dbManager.Get(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if raw != nil {
		var rec vault.NonceRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			resp.Used = rec.Used
		}
	}
	writeJSON(w, http.StatusOK, &resp)
}

type balanceResponse struct {
	Address string `json:"address"`
	Mint    string `json:"mint,omitempty"`
	Balance uint64 `json:"balance"`
	Exists  bool   `json:"exists"`
}

// HandleGetBalance 查询账户余额
// GET /balance?address=0x<hex>           原生账户
// GET /balance?address=0x<hex>&mint=0x...  该持有人在 mint 下的代币账户
func (hm *HandlerManager) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	hm.recordAPICall()
	q := r.URL.Query()

	addr, err := vault.ParseAccountID(q.Get("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address: "+err.Error())
		return
	}

	mintStr := q.Get("mint")
	if mintStr == "" {
		raw, err := hm.dbManager.Get(keys.KeyAccount(addr.Hex()))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := balanceResponse{Address: addr.String()}
		if raw != nil {
			var acct vm.Account
			if err := json.Unmarshal(raw, &acct); err != nil {
				writeError(w, http.StatusInternalServerError, "corrupt account record: "+err.Error())
				return
			}
			resp.Balance = acct.Balance
			resp.Exists = true
		}
		writeJSON(w, http.StatusOK, &resp)
		return
	}

	mint, err := vault.ParseAccountID(mintStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mint: "+err.Error())
		return
	}

	// 代币账户按 (mint, owner) 过滤前缀扫描，与结算路径同一套解析规则
	all, err := hm.dbManager.Scan(keys.NameOfKeyTokenAccountPrefix())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := balanceResponse{Address: addr.String(), Mint: mint.String()}
	for _, raw := range all {
		var ta vm.TokenAccount
		if err := json.Unmarshal(raw, &ta); err != nil {
			continue
		}
		if ta.Mint == mint && ta.Owner == addr {
			resp.Balance = ta.Amount
			resp.Exists = true
			break
		}
	}
	writeJSON(w, http.StatusOK, &resp)
}

// HandleGetReceipt 查询历史回执
// GET /receipt?vault=0x<hex>&kind=withdraw&request_id=<n>
func (hm *HandlerManager) HandleGetReceipt(w http.ResponseWriter, r *http.Request) {
	hm.recordAPICall()
	q := r.URL.Query()

	id, err := vault.ParseAccountID(q.Get("vault"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vault id: "+err.Error())
		return
	}
	kind := q.Get("kind")
	if kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	requestID, err := strconv.ParseUint(q.Get("request_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request_id")
		return
	}

	raw, err := hm.dbManager.Get(keys.KeyReceipt(id.Hex(), kind, requestID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}

	var rcpt vm.Receipt
	if err := json.Unmarshal(raw, &rcpt); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt receipt: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &rcpt)
}

type statusResponse struct {
	Status   string   `json:"status"`
	Port     string   `json:"port"`
	Kinds    []string `json:"kinds"`
	APICalls uint64   `json:"api_calls"`

	// 协议参数，签名端构造票据时要用
	NetworkID        uint64 `json:"network_id"`
	MaxSigners       int    `json:"max_signers"`
	MaxAssets        int    `json:"max_assets"`
	MaxBulkTickets   int    `json:"max_bulk_tickets"`
	ReserveBase      uint64 `json:"reserve_base"`
	ReservePerByte   uint64 `json:"reserve_per_byte"`
	NonceAccountSize uint64 `json:"nonce_account_size"`

	// 写队列累计计数
	WriteQueueEnqueued uint64 `json:"write_queue_enqueued"`
	WriteQueueFlushed  uint64 `json:"write_queue_flushed"`
	WriteQueueErrors   uint64 `json:"write_queue_errors"`
}

// HandleStatus 服务状态与协议参数
func (hm *HandlerManager) HandleStatus(w http.ResponseWriter, r *http.Request) {
	hm.recordAPICall()

	enqueued, _, _, flushed, flushErrs := hm.dbManager.WriteQueueStats()
	resp := statusResponse{
		Status:   "ok",
		Port:     hm.cfg.Server.Port,
		Kinds:    hm.engine.Registry().List(),
		APICalls: atomic.LoadUint64(&hm.apiCalls),

		NetworkID:        hm.cfg.Custody.NetworkID,
		MaxSigners:       hm.cfg.Custody.MaxSigners,
		MaxAssets:        hm.cfg.Custody.MaxAssets,
		MaxBulkTickets:   hm.cfg.Custody.MaxBulkTickets,
		ReserveBase:      hm.cfg.Custody.ReserveBase,
		ReservePerByte:   hm.cfg.Custody.ReservePerByte,
		NonceAccountSize: hm.cfg.Custody.NonceAccountSize,

		WriteQueueEnqueued: enqueued,
		WriteQueueFlushed:  flushed,
		WriteQueueErrors:   flushErrs,
	}
	writeJSON(w, http.StatusOK, &resp)
}
