// vm/admin_deposit_handler.go
// 管理员代用户入金：带票据，至少一个注册签名人签过即可；
// 走 admin nonce 命名空间，白名单照常约束。
package vm

import (
	"custody/config"
	"custody/vault"
)

// AdminDepositHandler 管理员入金处理器
type AdminDepositHandler struct {
	Cfg *config.CustodyConfig
}

func (h *AdminDepositHandler) Kind() string {
	return KindAdminDeposit
}

func (h *AdminDepositHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	t := req.AdminDeposit
	if t == nil {
		return nil, ErrNilRequest
	}
	rcpt := newReceipt(KindAdminDeposit, t.Vault, t.RequestID, now).withTicket(t.Hash())

	v, err := getVault(sv, t.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if err := checkTicketEnvelope(v, t.Vault, t.NetworkID, t.Expiry, now); err != nil {
		return rcpt.fail(err)
	}

	if t.User.IsZero() {
		return rcpt.fail(vault.ErrUnauthorizedUser)
	}
	if len(t.Deposits) == 0 {
		return rcpt.fail(vault.ErrNoDepositsProvided)
	}
	if len(t.Deposits) > h.Cfg.MaxAssets {
		return rcpt.fail(vault.ErrTooManyAssets)
	}
	for _, line := range t.Deposits {
		if line.Amount == 0 {
			return rcpt.fail(vault.ErrInvalidAmount)
		}
		if !v.IsWhitelisted(line.Asset) {
			return rcpt.fail(vault.ErrAssetNotWhitelisted)
		}
	}
	if err := vault.CheckDuplicateAssets(t.Deposits); err != nil {
		return rcpt.fail(err)
	}

	validCount, err := v.Authorize(t, req.Signatures, vault.PolicyAtLeastOne)
	if err != nil {
		rcpt.ValidSigners = validCount
		return rcpt.fail(err)
	}
	rcpt.ValidSigners = validCount

	if err := reserveNonce(sv, t.Vault, t.RequestID, true); err != nil {
		return rcpt.fail(err)
	}

	// 资金从 user 的账户进金库
	for _, line := range t.Deposits {
		if line.Asset.IsNative() {
			treasury, err := getTreasury(sv, v)
			if err != nil {
				return rcpt.fail(err)
			}
			if err := debitNative(sv, t.User, line.Amount); err != nil {
				return rcpt.fail(err)
			}
			if err := creditNative(sv, treasury.Address, line.Amount); err != nil {
				return rcpt.fail(err)
			}
			continue
		}
		from, err := resolveTokenAccount(sv, line.Asset.Mint, t.User)
		if err != nil {
			return rcpt.fail(err)
		}
		to, err := resolveTokenAccount(sv, line.Asset.Mint, v.VaultID)
		if err != nil {
			return rcpt.fail(err)
		}
		if from.Amount < line.Amount {
			return rcpt.fail(vault.ErrInsufficientFunds)
		}
		if err := transferToken(sv, from, to, line.Amount); err != nil {
			return rcpt.fail(err)
		}
	}

	return rcpt.succeed(validCount)
}
