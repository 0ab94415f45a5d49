// vault/ticket.go
// 票据定义与规范哈希。每种票据一个域分隔符，字段按固定顺序小端编码，
// 再做 keccak-256。编码与链下签名方的约定完全一致，改一个字节都会导致
// 所有已收集的签名失效。
package vault

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// 各票据类型的域分隔符，防止跨类型哈希碰撞
const (
	SeparatorWithdrawal     = "strike-protocol-v1-Withdrawal"
	SeparatorBulkWithdrawal = "strike-protocol-v1-BulkWithdrawal"
	SeparatorAddAsset       = "strike-protocol-v1-AddAsset"
	SeparatorRemoveAsset    = "strike-protocol-v1-RemoveAsset"
	SeparatorRotate         = "strike-protocol-v1-rotate"
	SeparatorAdminDeposit   = "strike-protocol-v1-AdminDeposit"
)

// Ticket 可哈希的请求。闭合的变体集合，每个变体自带哈希实现。
type Ticket interface {
	Separator() string
	Hash() common.Hash
}

func appendUint64LE(data []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(data, buf[:]...)
}

func appendInt64LE(data []byte, v int64) []byte {
	return appendUint64LE(data, uint64(v))
}

func keccak256(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ========== 提现票据 ==========

// WithdrawalTicket 单收款人提现票据，withdrawals 为资产数量清单
type WithdrawalTicket struct {
	RequestID   uint64        `json:"request_id"`
	Vault       AccountID     `json:"vault"`
	Recipient   AccountID     `json:"recipient"`
	Withdrawals []AssetAmount `json:"withdrawals"`
	Expiry      int64         `json:"expiry"`     // Unix 秒
	NetworkID   uint64        `json:"network_id"` // 环境标识，防跨网重放
}

func (t *WithdrawalTicket) Separator() string {
	return SeparatorWithdrawal
}

func (t *WithdrawalTicket) Hash() common.Hash {
	data := []byte(t.Separator())
	data = appendUint64LE(data, t.RequestID)
	data = append(data, t.Vault[:]...)
	data = append(data, t.Recipient[:]...)
	for _, aa := range t.Withdrawals {
		data = aa.appendTo(data)
	}
	data = appendInt64LE(data, t.Expiry)
	data = appendUint64LE(data, t.NetworkID)
	return keccak256(data)
}

// ========== 批量提现票据 ==========

// BulkWithdrawalTicket 有序的一批提现票据，整批一次授权、一次结算
type BulkWithdrawalTicket struct {
	Tickets []WithdrawalTicket `json:"tickets"`
}

func (t *BulkWithdrawalTicket) Separator() string {
	return SeparatorBulkWithdrawal
}

// Hash 批量票据哈希：分隔符后依次拼接每张子票据的 32 字节哈希。
// 子哈希已经对各自字段单射，定长拼接保持整体单射，顺序变化会改变结果。
func (t *BulkWithdrawalTicket) Hash() common.Hash {
	data := []byte(t.Separator())
	for i := range t.Tickets {
		h := t.Tickets[i].Hash()
		data = append(data, h[:]...)
	}
	return keccak256(data)
}

// ========== 资产白名单票据 ==========

// AddAssetTicket 把资产加入金库存款白名单
type AddAssetTicket struct {
	RequestID uint64    `json:"request_id"`
	Vault     AccountID `json:"vault"`
	Asset     Asset     `json:"asset"`
	Expiry    int64     `json:"expiry"`
	NetworkID uint64    `json:"network_id"`
}

func (t *AddAssetTicket) Separator() string {
	return SeparatorAddAsset
}

func (t *AddAssetTicket) Hash() common.Hash {
	return hashAssetTicket(t.Separator(), t.RequestID, t.Vault, t.Asset, t.Expiry, t.NetworkID)
}

// RemoveAssetTicket 把资产移出金库存款白名单
type RemoveAssetTicket struct {
	RequestID uint64    `json:"request_id"`
	Vault     AccountID `json:"vault"`
	Asset     Asset     `json:"asset"`
	Expiry    int64     `json:"expiry"`
	NetworkID uint64    `json:"network_id"`
}

func (t *RemoveAssetTicket) Separator() string {
	return SeparatorRemoveAsset
}

func (t *RemoveAssetTicket) Hash() common.Hash {
	return hashAssetTicket(t.Separator(), t.RequestID, t.Vault, t.Asset, t.Expiry, t.NetworkID)
}

// 资产票据字段顺序：request id、vault、expiry、network、asset（资产在最后）
func hashAssetTicket(separator string, requestID uint64, vaultID AccountID, asset Asset, expiry int64, networkID uint64) common.Hash {
	data := []byte(separator)
	data = appendUint64LE(data, requestID)
	data = append(data, vaultID[:]...)
	data = appendInt64LE(data, expiry)
	data = appendUint64LE(data, networkID)
	data = asset.appendTo(data)
	return keccak256(data)
}

// ========== 签名人轮换票据 ==========

// RotateValidatorsTicket 整体替换金库签名人集合与 M 阈值
type RotateValidatorsTicket struct {
	RequestID  uint64           `json:"request_id"`
	Vault      AccountID        `json:"vault"`
	Signers    []common.Address `json:"signers"`
	MThreshold uint8            `json:"m_threshold"`
	Expiry     int64            `json:"expiry"`
	NetworkID  uint64           `json:"network_id"`
}

func (t *RotateValidatorsTicket) Separator() string {
	return SeparatorRotate
}

func (t *RotateValidatorsTicket) Hash() common.Hash {
	data := []byte(t.Separator())
	data = appendUint64LE(data, t.RequestID)
	data = append(data, t.Vault[:]...)
	// 每个签名人地址用 55/56 标记字节包住，列表编码保持单射
	for _, signer := range t.Signers {
		data = append(data, 55)
		data = append(data, signer[:]...)
		data = append(data, 56)
	}
	data = append(data, t.MThreshold)
	data = appendInt64LE(data, t.Expiry)
	data = appendUint64LE(data, t.NetworkID)
	return keccak256(data)
}

// ========== 管理员存款票据 ==========

// AdminDepositTicket 管理员代用户入金，deposits 为资产数量清单
type AdminDepositTicket struct {
	RequestID uint64        `json:"request_id"`
	Vault     AccountID     `json:"vault"`
	User      AccountID     `json:"user"`
	Deposits  []AssetAmount `json:"deposits"`
	Expiry    int64         `json:"expiry"`
	NetworkID uint64        `json:"network_id"`
}

func (t *AdminDepositTicket) Separator() string {
	return SeparatorAdminDeposit
}

func (t *AdminDepositTicket) Hash() common.Hash {
	data := []byte(t.Separator())
	data = appendUint64LE(data, t.RequestID)
	data = append(data, t.Vault[:]...)
	data = append(data, t.User[:]...)
	for _, aa := range t.Deposits {
		data = aa.appendTo(data)
	}
	data = appendInt64LE(data, t.Expiry)
	data = appendUint64LE(data, t.NetworkID)
	return keccak256(data)
}
