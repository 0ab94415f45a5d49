package utils

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpEcdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"custody/vault"
)

// DeriveEthereumAddress 模拟以太坊的地址推导: keccak256(pubUncompressed[1:])最后20字节
func DeriveEthereumAddress(privKey *secp256k1.PrivateKey) string {
	// 先获取 uncompressed 公钥 (首字节0x04 + 32字节X + 32字节Y = 65字节)
	pubUncompressed := privKey.PubKey().SerializeUncompressed()

	// keccak-256
	hash := sha3.NewLegacyKeccak256()
	// 跳过首字节 0x04，剩余 64 字节是 X、Y
	hash.Write(pubUncompressed[1:])
	digest := hash.Sum(nil) // 32字节

	// 取后20字节作为地址
	addr := digest[12:] // 最后20字节
	return "0x" + hex.EncodeToString(addr)
}

// SignerAddress 私钥对应的签名人身份（注册进金库记录的那个地址）
func SignerAddress(privKey *secp256k1.PrivateKey) common.Address {
	return vault.PubKeyToSignerAddress(privKey.PubKey().SerializeUncompressed())
}

// GenerateSigningKey 生成一把新的 secp256k1 私钥（测试与签名 CLI 用）
func GenerateSigningKey() (*secp256k1.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// SignRecoverable 对 32 字节票据哈希做可恢复签名，返回 r||s 与 recovery id (0/1)
func SignRecoverable(privKey *secp256k1.PrivateKey, messageHash common.Hash) (vault.Signature, uint8) {
	compact := secpEcdsa.SignCompact(privKey, messageHash[:], false)
	var sig vault.Signature
	copy(sig[:], compact[1:])
	return sig, compact[0] - 27
}

// ParseSecp256k1PrivateKey 同时支持 WIF 或 16 进制的32字节私钥字符串
func ParseSecp256k1PrivateKey(keyStr string) (*secp256k1.PrivateKey, error) {
	// 1) 尝试当作WIF解析
	if wif, err := btcutil.DecodeWIF(keyStr); err == nil {
		// 解析成功，直接返回其内部的 *secp256k1.privateKey
		return wif.PrivKey, nil
	}

	// 2) 如果不是WIF，则尝试按Hex进行解析
	raw, err := hex.DecodeString(keyStr)
	if err != nil {
		return nil, errors.New("invalid key (neither valid WIF nor valid hex): " + err.Error())
	}
	if len(raw) != 32 {
		return nil, errors.New("invalid private key length in hex (must be 32 bytes)")
	}

	// 3) 使用 32 字节原生私钥
	privKey := secp256k1.PrivKeyFromBytes(raw)
	return privKey, nil
}

// DeriveAddress 从种子序列派生账本地址：keccak256(seed... || bump)，bump 固定 255。
// 金库地址用 ("vault", seed 字符串) 派生，treasury 用 ("treasury", 金库地址)。
func DeriveAddress(seeds ...[]byte) (vault.AccountID, uint8) {
	const bump = 255
	h := sha3.NewLegacyKeccak256()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write([]byte{bump})
	var id vault.AccountID
	copy(id[:], h.Sum(nil))
	return id, bump
}
