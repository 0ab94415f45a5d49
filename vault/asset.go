// vault/asset.go
// 账本地址、资产与资产数量的基础类型
package vault

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AccountID 32 字节的账本账户标识（金库、treasury、收款人、mint 都用它）
type AccountID [32]byte

// String 转为 0x 前缀的十六进制
func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Hex 不带 0x 前缀的十六进制，主要用于拼 DB key
func (a AccountID) Hex() string {
	return hex.EncodeToString(a[:])
}

// IsZero 是否为零地址
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccountID(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAccountID 解析 0x 前缀或裸 hex 的 32 字节地址
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid account id hex: %w", err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("invalid account id length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ========== 资产 ==========

// AssetKind 资产类别标签
type AssetKind uint8

const (
	AssetNative AssetKind = 0 // 原生币
	AssetToken  AssetKind = 1 // 同质化代币，由 mint 标识
)

// Asset 资产标签联合：原生币或代币。相等性是结构相等，
// 字段全部定长，可直接做 map key。
type Asset struct {
	Kind AssetKind `json:"kind"`
	Mint AccountID `json:"mint,omitempty"`
}

// NativeAsset 原生币资产
func NativeAsset() Asset {
	return Asset{Kind: AssetNative}
}

// TokenAsset mint 标识的代币资产
func TokenAsset(mint AccountID) Asset {
	return Asset{Kind: AssetToken, Mint: mint}
}

// IsNative 是否原生币
func (a Asset) IsNative() bool {
	return a.Kind == AssetNative
}

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return "token:" + a.Mint.String()
}

// appendTo 票据哈希用的规范编码：原生币一个 0 字节，
// 代币为 1 字节标签加 32 字节 mint（与对端签名方约定一致，不可改动）
func (a Asset) appendTo(data []byte) []byte {
	if a.IsNative() {
		return append(data, 0)
	}
	data = append(data, 1)
	return append(data, a.Mint[:]...)
}

// AssetAmount 资产与数量，amount 必须大于 0
type AssetAmount struct {
	Asset  Asset  `json:"asset"`
	Amount uint64 `json:"amount"`
}

// appendTo 编码顺序：资产、标记字节 64、数量小端 8 字节。
// 标记字节隔开变长的资产编码和数量字段，保证编码单射。
func (aa AssetAmount) appendTo(data []byte) []byte {
	data = aa.Asset.appendTo(data)
	data = append(data, 64)
	return appendUint64LE(data, aa.Amount)
}

// CheckDuplicateAssets 同一清单里不允许出现重复资产
func CheckDuplicateAssets(list []AssetAmount) error {
	seen := make(map[Asset]struct{}, len(list))
	for _, aa := range list {
		if _, ok := seen[aa.Asset]; ok {
			return ErrDuplicateAsset
		}
		seen[aa.Asset] = struct{}{}
	}
	return nil
}
