// vm/withdraw_handler.go
// 单票提现结算。门禁顺序固定：结构 → 信封 → 签名 → nonce → 偿付 → 转账。
// nonce 在任何余额变动之前消耗，重放的票据到不了转账那一步。
package vm

import (
	"custody/config"
	"custody/vault"
)

// WithdrawHandler 普通提现（M-of-N 阈值）
type WithdrawHandler struct {
	Cfg *config.CustodyConfig
}

func (h *WithdrawHandler) Kind() string {
	return KindWithdraw
}

func (h *WithdrawHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	if req.Withdrawal == nil {
		return nil, ErrNilRequest
	}
	return applySingleWithdraw(h.Cfg, KindWithdraw, req.Withdrawal, req.Signatures, sv, now, vault.PolicyMOfN, false)
}

// AdminWithdrawHandler 管理员提现：同一张提现票据，但走管理阈值
// 和独立的 admin nonce 命名空间
type AdminWithdrawHandler struct {
	Cfg *config.CustodyConfig
}

func (h *AdminWithdrawHandler) Kind() string {
	return KindAdminWithdraw
}

func (h *AdminWithdrawHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	if req.AdminWithdrawal == nil {
		return nil, ErrNilRequest
	}
	return applySingleWithdraw(h.Cfg, KindAdminWithdraw, req.AdminWithdrawal, req.Signatures, sv, now, vault.PolicyAdmin, true)
}

func applySingleWithdraw(cfg *config.CustodyConfig, kind string, t *vault.WithdrawalTicket, sigs []vault.SignerWithSignature, sv StateView, now int64, policy vault.SigPolicy, adminNonce bool) (*Receipt, error) {
	rcpt := newReceipt(kind, t.Vault, t.RequestID, now).withTicket(t.Hash())

	// 1. 结构：清单非空、数量为正、无重复资产、收款人非零。
	//    结构先于信封：空票就报空票，不报过期
	if err := checkWithdrawalLines(cfg, t.Withdrawals); err != nil {
		return rcpt.fail(err)
	}
	if t.Recipient.IsZero() {
		return rcpt.fail(vault.ErrInvalidRecipient)
	}

	// 2. 信封：金库、网络、有效期
	v, err := getVault(sv, t.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if err := checkTicketEnvelope(v, t.Vault, t.NetworkID, t.Expiry, now); err != nil {
		return rcpt.fail(err)
	}

	// 3. 签名：两道门都在 Authorize 里
	validCount, err := v.Authorize(t, sigs, policy)
	if err != nil {
		rcpt.ValidSigners = validCount
		return rcpt.fail(err)
	}
	rcpt.ValidSigners = validCount

	// 4. nonce：检查并消耗，先于一切转账
	if err := reserveNonce(sv, t.Vault, t.RequestID, adminNonce); err != nil {
		return rcpt.fail(err)
	}

	// 5. 偿付与转账，逐行结算
	for _, line := range t.Withdrawals {
		if err := settleWithdrawalLine(cfg, sv, v, t.Recipient, line); err != nil {
			return rcpt.fail(err)
		}
	}

	return rcpt.succeed(validCount)
}

// checkWithdrawalLines 提现清单的结构检查
func checkWithdrawalLines(cfg *config.CustodyConfig, lines []vault.AssetAmount) error {
	if len(lines) == 0 {
		return vault.ErrNoWithdrawalsProvided
	}
	if len(lines) > cfg.MaxAssets {
		return vault.ErrTooManyAssets
	}
	for _, line := range lines {
		if line.Amount == 0 {
			return vault.ErrInvalidAmount
		}
	}
	return vault.CheckDuplicateAssets(lines)
}

// settleWithdrawalLine 单行结算：先验偿付能力再动余额
func settleWithdrawalLine(cfg *config.CustodyConfig, sv StateView, v *vault.Vault, recipient vault.AccountID, line vault.AssetAmount) error {
	if line.Asset.IsNative() {
		treasury, err := getTreasury(sv, v)
		if err != nil {
			return err
		}
		// 可动用余额 = 余额 − 最小保留额，treasury 永远不会被掏穿保留额
		if line.Amount > AvailableBalance(cfg, treasury) {
			return vault.ErrInsufficientFunds
		}
		if err := debitNative(sv, treasury.Address, line.Amount); err != nil {
			return err
		}
		return creditNative(sv, recipient, line.Amount)
	}

	from, err := resolveTokenAccount(sv, line.Asset.Mint, v.VaultID)
	if err != nil {
		return err
	}
	to, err := resolveTokenAccount(sv, line.Asset.Mint, recipient)
	if err != nil {
		return err
	}
	if from.Amount < line.Amount {
		return vault.ErrInsufficientFunds
	}
	return transferToken(sv, from, to, line.Amount)
}
