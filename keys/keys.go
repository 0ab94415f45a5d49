// keys/keys.go
// 统一的 Key 定义包，供 vm 和 db 模块共同使用
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// ===================== 版本控制 =====================
// 设置全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
// 如需立刻兼容旧数据，暂时将 KeyVersion 设为 "" 即可不加版本前缀。
const KeyVersion = "v1"

// withVer 把版本号拼到最前面（保持下划线风格：v1_<...>）
func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// StripVersion 读取回退辅助：把带版本的键去掉版本前缀，便于双读回退。
func StripVersion(prefixed string) string {
	if KeyVersion == "" {
		return prefixed
	}
	p := KeyVersion + "_"
	return strings.TrimPrefix(prefixed, p)
}

// ===================== 金库相关 =====================

// KeyVault 金库记录
// 例：v1_vault_<vaultID hex>
func KeyVault(vaultID string) string {
	return withVer(fmt.Sprintf("vault_%s", vaultID))
}

// NameOfKeyVaultPrefix 金库记录前缀，用于扫描全部金库
func NameOfKeyVaultPrefix() string {
	return withVer("vault_")
}

// ===================== Nonce 相关 =====================

// KeyNonce 普通操作的 nonce 记录，键为 (vault, request id)
// 例：v1_nonce_<vaultID hex>_<requestID>
func KeyNonce(vaultID string, requestID uint64) string {
	return withVer(fmt.Sprintf("nonce_%s_%d", vaultID, requestID))
}

// KeyAdminNonce 管理操作的 nonce 记录，与普通 nonce 隔离命名空间
// 例：v1_admin_nonce_<vaultID hex>_<requestID>
func KeyAdminNonce(vaultID string, requestID uint64) string {
	return withVer(fmt.Sprintf("admin_nonce_%s_%d", vaultID, requestID))
}

// NameOfKeyNoncePrefix 某个金库的普通 nonce 前缀，用于启动时重建索引
func NameOfKeyNoncePrefix(vaultID string) string {
	return withVer(fmt.Sprintf("nonce_%s_", vaultID))
}

// NameOfKeyAllNoncePrefix 所有普通 nonce 的前缀
func NameOfKeyAllNoncePrefix() string {
	return withVer("nonce_")
}

// NameOfKeyAllAdminNoncePrefix 所有管理 nonce 的前缀
func NameOfKeyAllAdminNoncePrefix() string {
	return withVer("admin_nonce_")
}

// ParseNonceKey 从完整的 nonce key 解析出 (vault hex, request id, 是否 admin)。
// 非 nonce key 返回 ok=false。落库侧用它维护已用 request id 的位图索引。
func ParseNonceKey(key string) (vaultHex string, requestID uint64, admin bool, ok bool) {
	rest := StripVersion(key)
	if strings.HasPrefix(rest, "admin_nonce_") {
		rest = strings.TrimPrefix(rest, "admin_nonce_")
		admin = true
	} else if strings.HasPrefix(rest, "nonce_") {
		rest = strings.TrimPrefix(rest, "nonce_")
	} else {
		return "", 0, false, false
	}

	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return "", 0, false, false
	}
	id, err := strconv.ParseUint(rest[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false, false
	}
	return rest[:idx], id, admin, true
}

// ===================== 账户相关 =====================

// KeyAccount 系统账户（含金库 treasury）
// 例：v1_account_<address hex>
func KeyAccount(address string) string {
	return withVer(fmt.Sprintf("account_%s", address))
}

// KeyTokenAccount 代币账户
// 例：v1_tokenacct_<address hex>
func KeyTokenAccount(address string) string {
	return withVer(fmt.Sprintf("tokenacct_%s", address))
}

// NameOfKeyTokenAccountPrefix 代币账户前缀，用于按 mint/owner 过滤扫描
func NameOfKeyTokenAccountPrefix() string {
	return withVer("tokenacct_")
}

// ===================== 审计相关 =====================

// KeyReceipt 结算回执（诊断用途，非权威数据）
// 例：v1_receipt_<vaultID hex>_<kind>_<requestID>
func KeyReceipt(vaultID, kind string, requestID uint64) string {
	return withVer(fmt.Sprintf("receipt_%s_%s_%d", vaultID, kind, requestID))
}

// NameOfKeyReceiptPrefix 某金库的回执前缀
func NameOfKeyReceiptPrefix(vaultID string) string {
	return withVer(fmt.Sprintf("receipt_%s_", vaultID))
}
