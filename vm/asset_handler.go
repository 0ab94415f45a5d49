// vm/asset_handler.go
// 白名单维护：加/删资产都是管理操作，走管理阈值与 admin nonce。
// 重复加、删不存在的资产是幂等空操作：nonce 照常消耗，状态不变。
package vm

import (
	"custody/config"
	"custody/vault"
)

// AddAssetHandler 资产加入白名单
type AddAssetHandler struct {
	Cfg *config.CustodyConfig
}

func (h *AddAssetHandler) Kind() string {
	return KindAddAsset
}

func (h *AddAssetHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	t := req.AddAsset
	if t == nil {
		return nil, ErrNilRequest
	}
	rcpt := newReceipt(KindAddAsset, t.Vault, t.RequestID, now).withTicket(t.Hash())

	v, err := getVault(sv, t.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if err := checkTicketEnvelope(v, t.Vault, t.NetworkID, t.Expiry, now); err != nil {
		return rcpt.fail(err)
	}

	validCount, err := v.Authorize(t, req.Signatures, vault.PolicyAdmin)
	if err != nil {
		rcpt.ValidSigners = validCount
		return rcpt.fail(err)
	}
	rcpt.ValidSigners = validCount

	if err := reserveNonce(sv, t.Vault, t.RequestID, true); err != nil {
		return rcpt.fail(err)
	}

	if !v.IsWhitelisted(t.Asset) {
		if len(v.Whitelist) >= h.Cfg.MaxAssets {
			return rcpt.fail(vault.ErrTooManyAssets)
		}
		v.Whitelist = append(v.Whitelist, t.Asset)
		if err := putVault(sv, v); err != nil {
			return rcpt.fail(err)
		}
	}

	return rcpt.succeed(validCount)
}

// RemoveAssetHandler 资产移出白名单
type RemoveAssetHandler struct {
	Cfg *config.CustodyConfig
}

func (h *RemoveAssetHandler) Kind() string {
	return KindRemoveAsset
}

func (h *RemoveAssetHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	t := req.RemoveAsset
	if t == nil {
		return nil, ErrNilRequest
	}
	rcpt := newReceipt(KindRemoveAsset, t.Vault, t.RequestID, now).withTicket(t.Hash())

	v, err := getVault(sv, t.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if err := checkTicketEnvelope(v, t.Vault, t.NetworkID, t.Expiry, now); err != nil {
		return rcpt.fail(err)
	}

	validCount, err := v.Authorize(t, req.Signatures, vault.PolicyAdmin)
	if err != nil {
		rcpt.ValidSigners = validCount
		return rcpt.fail(err)
	}
	rcpt.ValidSigners = validCount

	if err := reserveNonce(sv, t.Vault, t.RequestID, true); err != nil {
		return rcpt.fail(err)
	}

	// 移除只影响后续入金，已入库的资产照常可提
	for i, a := range v.Whitelist {
		if a == t.Asset {
			v.Whitelist = append(v.Whitelist[:i], v.Whitelist[i+1:]...)
			if err := putVault(sv, v); err != nil {
				return rcpt.fail(err)
			}
			break
		}
	}

	return rcpt.succeed(validCount)
}
