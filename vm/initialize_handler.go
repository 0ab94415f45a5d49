// vm/initialize_handler.go
// 创建金库：派生金库与 treasury 地址、校验签名人集合、落金库记录
package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"custody/config"
	"custody/keys"
	"custody/utils"
	"custody/vault"
)

// InitializeHandler 金库创建处理器
type InitializeHandler struct {
	Cfg *config.CustodyConfig
}

func (h *InitializeHandler) Kind() string {
	return KindInitialize
}

func (h *InitializeHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	p := req.Initialize
	if p == nil {
		return nil, ErrNilRequest
	}

	// 1. 派生金库地址与 treasury 地址
	vaultID, bump := utils.DeriveAddress([]byte("vault"), []byte(p.VaultSeed))
	treasuryID, treasuryBump := utils.DeriveAddress([]byte("treasury"), vaultID[:])

	rcpt := newReceipt(KindInitialize, vaultID, 0, now)

	if p.VaultSeed == "" {
		return rcpt.fail(fmt.Errorf("empty vault seed"))
	}
	if p.Authority.IsZero() {
		return rcpt.fail(vault.ErrUnauthorizedUser)
	}

	// 2. 解析并校验签名人集合
	if len(p.Signers) == 0 || len(p.Signers) > h.Cfg.MaxSigners {
		return rcpt.fail(vault.ErrInvalidSignersCount)
	}
	signers := make([]common.Address, 0, len(p.Signers))
	for _, s := range p.Signers {
		if !common.IsHexAddress(s) {
			return rcpt.fail(fmt.Errorf("invalid signer address: %s", s))
		}
		signers = append(signers, common.HexToAddress(s))
	}

	// 管理阈值缺省为全体一致
	adminThreshold := p.AdminThreshold
	if adminThreshold == 0 {
		adminThreshold = uint8(len(signers))
	}
	if err := vault.ValidateSignerSet(signers, p.MThreshold, adminThreshold); err != nil {
		return rcpt.fail(err)
	}

	// 3. 白名单上限与重复检查
	if len(p.Whitelist) > h.Cfg.MaxAssets {
		return rcpt.fail(vault.ErrTooManyAssets)
	}
	seen := make(map[vault.Asset]struct{}, len(p.Whitelist))
	for _, a := range p.Whitelist {
		if _, ok := seen[a]; ok {
			return rcpt.fail(vault.ErrDuplicateAsset)
		}
		seen[a] = struct{}{}
	}

	// 4. 金库不允许重复创建
	if _, ok, err := sv.Get(keys.KeyVault(vaultID.Hex())); err != nil {
		return rcpt.fail(err)
	} else if ok {
		return rcpt.fail(fmt.Errorf("vault already exists: %s", vaultID))
	}

	// 5. 落金库记录与 treasury 账户。
	// treasury 初始余额就是最小保留额，可动用余额从 0 起步。
	v := &vault.Vault{
		VaultID:        vaultID,
		Authority:      p.Authority,
		VaultSeed:      p.VaultSeed,
		NetworkID:      h.Cfg.NetworkID,
		MThreshold:     p.MThreshold,
		AdminThreshold: adminThreshold,
		Signers:        signers,
		Whitelist:      p.Whitelist,
		Bump:           bump,
		TreasuryBump:   treasuryBump,
	}
	if err := putVault(sv, v); err != nil {
		return rcpt.fail(err)
	}

	treasury := &Account{
		Address: treasuryID,
		Owner:   OwnerSystem,
		Size:    0,
		Balance: MinimumReserve(h.Cfg, 0),
	}
	if err := putAccount(sv, treasury); err != nil {
		return rcpt.fail(err)
	}

	return rcpt.succeed(0)
}
