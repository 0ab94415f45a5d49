// vault/record.go
// 金库与 nonce 的持久化记录。两者都以 JSON 存进 KV，对应的 key 见 keys 包。
package vault

import (
	"github.com/ethereum/go-ethereum/common"
)

// 协议硬限制
const (
	CurrentVersion = 1
	MaxSigners     = 10 // N
	MaxAssets      = 20
	MaxBulkTickets = 20
)

// Vault 金库记录：授权根。签名人集合与两个阈值被每次验签读取，
// 只有轮换/白名单操作可以改它。
type Vault struct {
	VaultID        AccountID        `json:"vault_id"`
	Authority      AccountID        `json:"authority"` // 创建者，用于地址派生
	VaultSeed      string           `json:"vault_seed"`
	NetworkID      uint64           `json:"network_id"`
	MThreshold     uint8            `json:"m_threshold"`     // 普通操作 M of N
	AdminThreshold uint8            `json:"admin_threshold"` // 特权操作阈值，>= m
	Signers        []common.Address `json:"signers"`         // 签名人的以太坊风格地址
	Whitelist      []Asset          `json:"whitelisted_assets"`
	Bump           uint8            `json:"bump"`
	TreasuryBump   uint8            `json:"treasury_bump"`
}

// TreasuryID 金库 treasury 账户地址（由金库地址派生，见 utils.DeriveAddress）
func (v *Vault) TreasuryID() AccountID {
	id, _ := deriveChild("treasury", v.VaultID)
	return id
}

// IsWhitelisted 资产是否在存款白名单内
func (v *Vault) IsWhitelisted(asset Asset) bool {
	for _, a := range v.Whitelist {
		if a == asset {
			return true
		}
	}
	return false
}

// HasSigner 地址是否是注册签名人
func (v *Vault) HasSigner(addr common.Address) bool {
	for _, s := range v.Signers {
		if s == addr {
			return true
		}
	}
	return false
}

// ValidateSignerSet 校验签名人集合与阈值：
// 1 <= m <= n，1 <= admin <= n，n <= MaxSigners，无重复。
func ValidateSignerSet(signers []common.Address, mThreshold, adminThreshold uint8) error {
	n := len(signers)
	if n == 0 || n > MaxSigners {
		return ErrInvalidSignersCount
	}
	if mThreshold == 0 || int(mThreshold) > n {
		return ErrInvalidThreshold
	}
	if adminThreshold == 0 || int(adminThreshold) > n {
		return ErrInvalidAdminThreshold
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if signers[i] == signers[j] {
				return ErrDuplicateSigner
			}
		}
	}
	return nil
}

// NonceRecord 一次性 nonce：(vault, request id) 的单向 used 标志。
// 首次引用时才落库；一旦置为 true 终生不变，是唯一的防重放锚点。
type NonceRecord struct {
	Address AccountID `json:"address"` // 派生出的 nonce 记录地址
	Used    bool      `json:"used"`
}

// deriveChild 与 utils.DeriveAddress 同样的派生规则，放在本包避免循环依赖。
// keccak256(前缀 || 父地址 || bump)，bump 固定从 255 起。
func deriveChild(prefix string, parent AccountID) (AccountID, uint8) {
	const bump = 255
	data := []byte(prefix)
	data = append(data, parent[:]...)
	data = append(data, bump)
	h := keccak256(data)
	var id AccountID
	copy(id[:], h[:])
	return id, bump
}

// DeriveNonceAddress 票据对应的 nonce 记录地址：keccak("nonce" || vault || requestID LE || bump)。
// 批量路径用它校验调用方提供的 nonce 槽位没有被偷换。
func DeriveNonceAddress(vaultID AccountID, requestID uint64) AccountID {
	return deriveNonceAddr("nonce", vaultID, requestID)
}

// DeriveAdminNonceAddress 管理员槽位用独立的 "admin_nonce" 种子，
// 和普通槽位的地址空间天然分离
func DeriveAdminNonceAddress(vaultID AccountID, requestID uint64) AccountID {
	return deriveNonceAddr("admin_nonce", vaultID, requestID)
}

func deriveNonceAddr(seed string, vaultID AccountID, requestID uint64) AccountID {
	const bump = 255
	data := []byte(seed)
	data = append(data, vaultID[:]...)
	data = appendUint64LE(data, requestID)
	data = append(data, bump)
	h := keccak256(data)
	var id AccountID
	copy(id[:], h[:])
	return id
}
