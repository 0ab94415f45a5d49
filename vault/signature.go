// vault/signature.go
// 可恢复签名：从 (消息哈希, 签名, recovery id) 直接恢复签名人的以太坊风格地址
package vault

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	secpEcdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Signature 64 字节的 r||s 签名体（各 32 字节）
type Signature [64]byte

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(s[:]))
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(str, "0x"), "0X"))
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(raw) != 64 {
		return fmt.Errorf("invalid signature length: %d", len(raw))
	}
	copy(s[:], raw)
	return nil
}

// SignerWithSignature 每次调用随请求提交的签名条目
type SignerWithSignature struct {
	Signature  Signature `json:"signature"`   // r 和 s 两个 32 字节分量
	RecoveryID uint8     `json:"recovery_id"` // v 分量（0、1、27 或 28）
}

// normalizeRecoveryID 同时接受 0/1 和以太坊惯用的 27/28
func normalizeRecoveryID(recoveryID uint8) (byte, error) {
	switch recoveryID {
	case 0, 1:
		return byte(recoveryID), nil
	case 27, 28:
		return byte(recoveryID - 27), nil
	default:
		return 0, ErrInvalidRecoveryID
	}
}

// RecoverSigner 从消息哈希和可恢复签名推出签名人地址。
// 纯函数：同样的输入要么总是得到同一个地址，要么总是同样失败。
// 地址推导为 keccak256(未压缩公钥去掉首字节)[12:]，与外部签名生态互通。
func RecoverSigner(messageHash common.Hash, signature Signature, recoveryID uint8) (common.Address, error) {
	recID, err := normalizeRecoveryID(recoveryID)
	if err != nil {
		return common.Address{}, err
	}

	// decred 的 compact 格式：首字节 27+recid（未压缩公钥），后接 r、s
	compact := make([]byte, 65)
	compact[0] = 27 + recID
	copy(compact[1:], signature[:])

	pubKey, _, err := secpEcdsa.RecoverCompact(compact, messageHash[:])
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}

	return PubKeyToSignerAddress(pubKey.SerializeUncompressed()), nil
}

// PubKeyToSignerAddress 未压缩公钥（0x04 开头 65 字节）→ 以太坊风格地址
func PubKeyToSignerAddress(pubUncompressed []byte) common.Address {
	h := sha3.NewLegacyKeccak256()
	// 跳过首字节 0x04，剩余 64 字节是 X、Y
	h.Write(pubUncompressed[1:])
	digest := h.Sum(nil)
	return common.BytesToAddress(digest[12:])
}
