// vm/state_helpers.go
// handler 共用的状态读写与门禁检查
package vm

import (
	"encoding/json"
	"fmt"

	"custody/keys"
	"custody/vault"
)

// getVault 读取金库记录，不存在返回 ErrInvalidVault
func getVault(sv StateView, vaultID vault.AccountID) (*vault.Vault, error) {
	raw, ok, err := sv.Get(keys.KeyVault(vaultID.Hex()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vault.ErrInvalidVault
	}
	var v vault.Vault
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("corrupt vault record %s: %w", vaultID, err)
	}
	return &v, nil
}

func putVault(sv StateView, v *vault.Vault) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	setWithCategory(sv, keys.KeyVault(v.VaultID.Hex()), raw, CategoryVault)
	return nil
}

// checkTicketEnvelope 所有带票据操作共用的门禁：金库匹配、网络匹配、未过期。
// 过期判定为 now > expiry，即 now == expiry 时票据仍有效。
func checkTicketEnvelope(v *vault.Vault, ticketVault vault.AccountID, networkID uint64, expiry, now int64) error {
	if ticketVault != v.VaultID {
		return vault.ErrInvalidVault
	}
	if networkID != v.NetworkID {
		return vault.ErrInvalidNetwork
	}
	if now > expiry {
		return vault.ErrTicketExpired
	}
	return nil
}

// ========== 一次性 nonce ==========

func nonceKey(vaultID vault.AccountID, requestID uint64, admin bool) string {
	if admin {
		return keys.KeyAdminNonce(vaultID.Hex(), requestID)
	}
	return keys.KeyNonce(vaultID.Hex(), requestID)
}

// loadNonce 读取 nonce 记录，不存在返回 (nil, nil)
func loadNonce(sv StateView, vaultID vault.AccountID, requestID uint64, admin bool) (*vault.NonceRecord, error) {
	raw, ok, err := sv.Get(nonceKey(vaultID, requestID, admin))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec vault.NonceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("corrupt nonce record: %w", err)
	}
	return &rec, nil
}

// checkNonceUnused 只检查不消耗，批量路径的 A 阶段用
func checkNonceUnused(sv StateView, vaultID vault.AccountID, requestID uint64, admin bool) error {
	rec, err := loadNonce(sv, vaultID, requestID, admin)
	if err != nil {
		return err
	}
	if rec != nil && rec.Used {
		return vault.ErrNonceAlreadyUsed
	}
	return nil
}

// reserveNonce 检查并消耗 (vault, request id)：已用返回 ErrNonceAlreadyUsed；
// 未见过则惰性落一条已用记录。used 标志单向，一旦写入永不翻回。
// 必须在任何余额变动之前调用，是唯一的防重放锚点。
func reserveNonce(sv StateView, vaultID vault.AccountID, requestID uint64, admin bool) error {
	rec, err := loadNonce(sv, vaultID, requestID, admin)
	if err != nil {
		return err
	}
	if rec == nil {
		addr := vault.DeriveNonceAddress(vaultID, requestID)
		if admin {
			addr = vault.DeriveAdminNonceAddress(vaultID, requestID)
		}
		rec = &vault.NonceRecord{Address: addr}
	}
	if rec.Used {
		return vault.ErrNonceAlreadyUsed
	}
	rec.Used = true
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	setWithCategory(sv, nonceKey(vaultID, requestID, admin), raw, CategoryNonce)
	return nil
}
