package utils

import (
	"encoding/hex"

	"custody/logs"

	"github.com/dchest/siphash"
)

// DigestItem 表示一个32字节的票据哈希 (0x+64 hex)
type DigestItem [32]byte

// Hash 使用SipHash对32字节的数据取 64 位指纹，做 LRU 缓存键足够
func (t DigestItem) Hash() uint64 {
	return siphash.Hash(0x12345678, 0x87654321, t[:])
}

// String 转换为 0x+64 hex 格式字符串
func (t DigestItem) String() string {
	return "0x" + hex.EncodeToString(t[:])
}

// ConvertDigestToItem 把字符串形式的票据哈希转换为 DigestItem(32字节)
func ConvertDigestToItem(digest string) (DigestItem, bool) {
	var res DigestItem
	decoded, err := hex.DecodeString(stripHexPrefix(digest))
	if err != nil {
		logs.Error("hex.DecodeString failed")
		return res, false
	}
	if len(decoded) != 32 {
		return res, false
	}
	copy(res[:], decoded)
	return res, true
}

func stripHexPrefix(s string) string {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
