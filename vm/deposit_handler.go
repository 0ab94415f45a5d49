// vm/deposit_handler.go
// 普通入金与金库代币账户创建。入金无票据无签名，只受白名单约束。
package vm

import (
	"fmt"

	"custody/config"
	"custody/utils"
	"custody/vault"
)

// DepositHandler 入金处理器
type DepositHandler struct {
	Cfg *config.CustodyConfig
}

func (h *DepositHandler) Kind() string {
	return KindDeposit
}

func (h *DepositHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	p := req.Deposit
	if p == nil {
		return nil, ErrNilRequest
	}
	rcpt := newReceipt(KindDeposit, p.Vault, 0, now)

	v, err := getVault(sv, p.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if p.Amount == 0 {
		return rcpt.fail(vault.ErrInvalidAmount)
	}
	if p.From.IsZero() {
		return rcpt.fail(vault.ErrUnauthorizedUser)
	}

	// 白名单只约束入金方向：不在名单里的资产进不来，已经在库里的照常能出
	if !v.IsWhitelisted(p.Asset) {
		return rcpt.fail(vault.ErrAssetNotWhitelisted)
	}

	if p.Asset.IsNative() {
		// 原生币：入金人账户 → treasury（校验系统所有权）
		treasury, err := getTreasury(sv, v)
		if err != nil {
			return rcpt.fail(err)
		}
		if err := debitNative(sv, p.From, p.Amount); err != nil {
			return rcpt.fail(err)
		}
		if err := creditNative(sv, treasury.Address, p.Amount); err != nil {
			return rcpt.fail(err)
		}
	} else {
		// 代币：入金人代币账户 → 金库代币账户
		from, err := resolveTokenAccount(sv, p.Asset.Mint, p.From)
		if err != nil {
			return rcpt.fail(err)
		}
		to, err := resolveTokenAccount(sv, p.Asset.Mint, v.VaultID)
		if err != nil {
			return rcpt.fail(err)
		}
		if from.Amount < p.Amount {
			return rcpt.fail(vault.ErrInsufficientFunds)
		}
		if err := transferToken(sv, from, to, p.Amount); err != nil {
			return rcpt.fail(err)
		}
	}

	return rcpt.succeed(0)
}

// CreateTokenAcctHandler 为金库创建某 mint 的代币账户，仅 authority 可调用
type CreateTokenAcctHandler struct {
	Cfg *config.CustodyConfig
}

func (h *CreateTokenAcctHandler) Kind() string {
	return KindCreateTokenAcct
}

func (h *CreateTokenAcctHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	p := req.CreateTokenAcct
	if p == nil {
		return nil, ErrNilRequest
	}
	rcpt := newReceipt(KindCreateTokenAcct, p.Vault, 0, now)

	v, err := getVault(sv, p.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if p.Authority != v.Authority {
		return rcpt.fail(vault.ErrUnauthorizedUser)
	}
	if p.Mint.IsZero() {
		return rcpt.fail(fmt.Errorf("zero mint"))
	}

	// 同一 (mint, vault) 只允许一个代币账户
	if _, err := resolveTokenAccount(sv, p.Mint, v.VaultID); err == nil {
		return rcpt.fail(fmt.Errorf("token account already exists for mint %s", p.Mint))
	} else if err != vault.ErrTokenAccountNotFound {
		return rcpt.fail(err)
	}

	addr, _ := utils.DeriveAddress([]byte("token"), v.VaultID[:], p.Mint[:])
	ta := &TokenAccount{
		Address: addr,
		Mint:    p.Mint,
		Owner:   v.VaultID,
		Amount:  0,
	}
	if err := putTokenAccount(sv, ta); err != nil {
		return rcpt.fail(err)
	}
	return rcpt.succeed(0)
}
