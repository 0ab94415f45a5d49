// vm/safe_math.go 提供带溢出检查的 uint64 运算
// 用于结算中余额、聚合总额等资产相关的安全运算
package vm

import (
	"math"

	"custody/vault"
)

// SafeAdd 安全加法：a + b
// 结果超过 uint64 上限返回 ErrOverflow。批量提现的逐票聚合路径依赖它：
// 任何一次聚合溢出都要让整批失败，而不是悄悄回绕。
func SafeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, vault.ErrOverflow
	}
	return a + b, nil
}

// SafeSub 安全减法：a - b
// a < b 返回 ErrUnderflow
func SafeSub(a, b uint64) (uint64, error) {
	if a < b {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// SaturatingSub 饱和减法：a < b 时返回 0。
// 可用余额 = 余额 − 最小保留额 用它，余额不足保留额时可用额记 0。
func SaturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// MustAdd 安全加法，panic 版本（仅用于已验证不会溢出的场景）
func MustAdd(a, b uint64) uint64 {
	result, err := SafeAdd(a, b)
	if err != nil {
		panic(err)
	}
	return result
}

// MustSub 安全减法，panic 版本（仅用于已验证不会下溢的场景）
func MustSub(a, b uint64) uint64 {
	result, err := SafeSub(a, b)
	if err != nil {
		panic(err)
	}
	return result
}
