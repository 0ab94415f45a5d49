package utils

import (
	"github.com/spaolacci/murmur3"
)

// MurmurTag 64 位审计关联标签：回执与日志两边都打同一个标签，
// grep 一个数字就能把一次结算的所有输出串起来
func MurmurTag(data []byte) uint64 {
	return murmur3.Sum64(data)
}
