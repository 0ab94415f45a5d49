// vm/ledger.go
// 宿主账本：原生币账户与代币账户的 JSON 记录及其读写、转账原语。
// 所有写入只进 StateView，落库由引擎统一提交。
package vm

import (
	"encoding/json"
	"fmt"

	"custody/config"
	"custody/keys"
	"custody/vault"
)

// 账户所有者标签
const (
	OwnerSystem = "system" // 系统持有（金库 treasury）
	OwnerUser   = "user"
)

// 写集分类标签
const (
	CategoryVault   = "vault"
	CategoryNonce   = "nonce"
	CategoryAccount = "account"
	CategoryToken   = "token"
	CategoryReceipt = "receipt"
)

// Account 原生币账户记录
type Account struct {
	Address vault.AccountID `json:"address"`
	Owner   string          `json:"owner"` // system / user
	Size    uint64          `json:"size"`  // 记录体积，参与最小保留额计算
	Balance uint64          `json:"balance"`
}

// TokenAccount 代币账户记录，(mint, owner) 在账本内应当唯一
type TokenAccount struct {
	Address vault.AccountID `json:"address"`
	Mint    vault.AccountID `json:"mint"`
	Owner   vault.AccountID `json:"owner"`
	Amount  uint64          `json:"amount"`
}

// MinimumReserve 账户必须保留的最小原生币余额
func MinimumReserve(cfg *config.CustodyConfig, size uint64) uint64 {
	return cfg.ReserveBase + size*cfg.ReservePerByte
}

// AvailableBalance 可动用余额：余额减去最小保留额，不足时为 0
func AvailableBalance(cfg *config.CustodyConfig, acct *Account) uint64 {
	return SaturatingSub(acct.Balance, MinimumReserve(cfg, acct.Size))
}

// getAccount 读取原生币账户，不存在返回 (nil, nil)
func getAccount(sv StateView, addr vault.AccountID) (*Account, error) {
	raw, ok, err := sv.Get(keys.KeyAccount(addr.Hex()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var acct Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("corrupt account record %s: %w", addr, err)
	}
	return &acct, nil
}

func putAccount(sv StateView, acct *Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	setWithCategory(sv, keys.KeyAccount(acct.Address.Hex()), raw, CategoryAccount)
	return nil
}

// creditNative 给地址加原生币，账户不存在则按普通用户账户创建
func creditNative(sv StateView, addr vault.AccountID, amount uint64) error {
	acct, err := getAccount(sv, addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &Account{Address: addr, Owner: OwnerUser}
	}
	newBalance, err := SafeAdd(acct.Balance, amount)
	if err != nil {
		return err
	}
	acct.Balance = newBalance
	return putAccount(sv, acct)
}

// debitNative 从地址扣原生币。余额校验由调用方先做，这里只兜底防下溢。
func debitNative(sv StateView, addr vault.AccountID, amount uint64) error {
	acct, err := getAccount(sv, addr)
	if err != nil {
		return err
	}
	if acct == nil {
		return vault.ErrInsufficientFunds
	}
	newBalance, err := SafeSub(acct.Balance, amount)
	if err != nil {
		return vault.ErrInsufficientFunds
	}
	acct.Balance = newBalance
	return putAccount(sv, acct)
}

// getTreasury 读取金库 treasury 账户并校验系统所有权
func getTreasury(sv StateView, v *vault.Vault) (*Account, error) {
	treasury, err := getAccount(sv, v.TreasuryID())
	if err != nil {
		return nil, err
	}
	if treasury == nil {
		return nil, vault.ErrInvalidVault
	}
	if treasury.Owner != OwnerSystem {
		return nil, vault.ErrInvalidTreasuryOwner
	}
	return treasury, nil
}

// ========== 代币账户 ==========

func getTokenAccount(sv StateView, addr vault.AccountID) (*TokenAccount, error) {
	raw, ok, err := sv.Get(keys.KeyTokenAccount(addr.Hex()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ta TokenAccount
	if err := json.Unmarshal(raw, &ta); err != nil {
		return nil, fmt.Errorf("corrupt token account record %s: %w", addr, err)
	}
	return &ta, nil
}

func putTokenAccount(sv StateView, ta *TokenAccount) error {
	raw, err := json.Marshal(ta)
	if err != nil {
		return err
	}
	setWithCategory(sv, keys.KeyTokenAccount(ta.Address.Hex()), raw, CategoryToken)
	return nil
}

// resolveTokenAccount 按 (mint, owner) 扫描代币账户。
// 恰好一个才合法：零个是 TokenAccountNotFound，多个说明账本被塞了
// 重复账户，直接拒绝而不是挑一个。
func resolveTokenAccount(sv StateView, mint, owner vault.AccountID) (*TokenAccount, error) {
	all, err := sv.Scan(keys.NameOfKeyTokenAccountPrefix())
	if err != nil {
		return nil, err
	}

	var found *TokenAccount
	for key, raw := range all {
		var ta TokenAccount
		if err := json.Unmarshal(raw, &ta); err != nil {
			return nil, fmt.Errorf("corrupt token account record %s: %w", key, err)
		}
		if ta.Mint != mint || ta.Owner != owner {
			continue
		}
		if found != nil {
			return nil, vault.ErrUnexpectedTokenAccounts
		}
		taCopy := ta
		found = &taCopy
	}
	if found == nil {
		return nil, vault.ErrTokenAccountNotFound
	}
	return found, nil
}

// transferToken 在两个已解析的代币账户间转移数量。
// 余额校验由调用方先做（单票路径直接比较，批量路径做聚合比较）。
func transferToken(sv StateView, from, to *TokenAccount, amount uint64) error {
	newFrom, err := SafeSub(from.Amount, amount)
	if err != nil {
		return vault.ErrInsufficientFunds
	}
	newTo, err := SafeAdd(to.Amount, amount)
	if err != nil {
		return err
	}
	from.Amount = newFrom
	to.Amount = newTo
	if err := putTokenAccount(sv, from); err != nil {
		return err
	}
	return putTokenAccount(sv, to)
}

// setWithCategory 写入时尽量带上分类标签（mock 视图可能没实现扩展接口）
func setWithCategory(sv StateView, key string, val []byte, category string) {
	type categorySetter interface {
		SetWithCategory(key string, val []byte, category string)
	}
	if cs, ok := sv.(categorySetter); ok {
		cs.SetWithCategory(key, val, category)
		return
	}
	sv.Set(key, val)
}
