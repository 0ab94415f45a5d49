// vault/policy.go
// 授权策略：恢复每个提交的签名、过滤未注册身份、按阈值计数。
// 提交数量检查（恢复前）与有效数量检查（过滤后）是两道独立的门，
// 调用方必须各自判定。
package vault

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/common"
)

// SigPolicy 每个操作显式声明用哪条签名策略，不做隐式推断
type SigPolicy uint8

const (
	// PolicyMOfN 普通操作：M-of-N 阈值（提现、批量提现）
	PolicyMOfN SigPolicy = iota
	// PolicyAdmin 特权操作：管理阈值（加/删资产、轮换签名人、管理员提现）
	PolicyAdmin
	// PolicyAtLeastOne 管理员存款：至少一个注册签名人签过即可
	PolicyAtLeastOne
)

// recoverCacheKey 完整键，避免指纹碰撞造成错配
type recoverCacheKey struct {
	hash       common.Hash
	sig        Signature
	recoveryID uint8
}

// 恢复结果缓存。secp256k1 恢复是整个验签路径里最贵的一步，
// 同一张票据在重试/批量场景会反复出现相同 (hash, sig) 对。
var recoverCache *lru.Cache

const defaultRecoverCacheSize = 4096

func init() {
	recoverCache, _ = lru.New(defaultRecoverCacheSize)
}

// SetRecoverCacheSize 按配置调整恢复缓存容量，启动时调用一次。
// 换新缓存即可，旧条目丢了重算就是。
func SetRecoverCacheSize(n int) {
	if n <= 0 {
		n = defaultRecoverCacheSize
	}
	recoverCache, _ = lru.New(n)
}

// cachedRecover 带缓存的 RecoverSigner。失败不缓存，保持确定性语义。
func cachedRecover(messageHash common.Hash, sub SignerWithSignature) (common.Address, error) {
	key := recoverCacheKey{hash: messageHash, sig: sub.Signature, recoveryID: sub.RecoveryID}
	if v, ok := recoverCache.Get(key); ok {
		return v.(common.Address), nil
	}
	addr, err := RecoverSigner(messageHash, sub.Signature, sub.RecoveryID)
	if err != nil {
		return common.Address{}, err
	}
	recoverCache.Add(key, addr)
	return addr, nil
}

// ValidateSignatures 对每个提交尝试恢复；恢复成功且身份在注册集合内才计入。
// 用 set 去重，同一签名人提交多份签名只算一次；未注册身份静默丢弃，不报错。
func ValidateSignatures(ticket Ticket, submissions []SignerWithSignature, registered []common.Address) map[common.Address]struct{} {
	messageHash := ticket.Hash()

	registeredSet := make(map[common.Address]struct{}, len(registered))
	for _, addr := range registered {
		registeredSet[addr] = struct{}{}
	}

	valid := make(map[common.Address]struct{})
	for _, sub := range submissions {
		recovered, err := cachedRecover(messageHash, sub)
		if err != nil {
			continue
		}
		if _, ok := registeredSet[recovered]; ok {
			valid[recovered] = struct{}{}
		}
	}
	return valid
}

// RequiredValidCount 返回策略要求的有效签名数
func (v *Vault) RequiredValidCount(policy SigPolicy) int {
	switch policy {
	case PolicyAdmin:
		return int(v.AdminThreshold)
	case PolicyAtLeastOne:
		return 1
	default:
		return int(v.MThreshold)
	}
}

// Authorize 两段式阈值判定：先按提交数快速失败，再按有效数判定。
// 返回有效签名人数量，便于审计日志记录。
func (v *Vault) Authorize(ticket Ticket, submissions []SignerWithSignature, policy SigPolicy) (int, error) {
	required := v.RequiredValidCount(policy)

	// 第一道门：提交的签名条数（未过滤）不够直接拒绝，不做恢复运算
	if len(submissions) < required {
		return 0, ErrInsufficientSignatures
	}

	// 第二道门：恢复并过滤后的有效签名人数量
	valid := ValidateSignatures(ticket, submissions, v.Signers)
	if len(valid) < required {
		return len(valid), ErrInsufficientValidSignature
	}
	return len(valid), nil
}
