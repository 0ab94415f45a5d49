// vault/policy_test.go
// 测试两段式阈值授权：提交数门、有效数门、去重、未注册过滤
package vault

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// newTestVault 生成 n 个真实密钥对并注册为签名人
func newTestVault(t *testing.T, n int, mThreshold, adminThreshold uint8) (*Vault, []*secp256k1.PrivateKey) {
	t.Helper()
	privs := make([]*secp256k1.PrivateKey, 0, n)
	signers := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		privs = append(privs, priv)
		signers = append(signers, signerAddress(priv))
	}
	v := &Vault{
		VaultID:        AccountID{0x01},
		NetworkID:      101,
		MThreshold:     mThreshold,
		AdminThreshold: adminThreshold,
		Signers:        signers,
	}
	require.NoError(t, ValidateSignerSet(v.Signers, v.MThreshold, v.AdminThreshold))
	return v, privs
}

func signBy(t *testing.T, ticket Ticket, privs ...*secp256k1.PrivateKey) []SignerWithSignature {
	t.Helper()
	hash := ticket.Hash()
	subs := make([]SignerWithSignature, 0, len(privs))
	for _, priv := range privs {
		subs = append(subs, signHash(t, priv, hash))
	}
	return subs
}

func TestAuthorizeMOfN(t *testing.T) {
	v, privs := newTestVault(t, 3, 2, 3)
	ticket := sampleWithdrawal()

	// 刚好达到阈值
	count, err := v.Authorize(ticket, signBy(t, ticket, privs[0], privs[1]), PolicyMOfN)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// 超过阈值也通过
	count, err = v.Authorize(ticket, signBy(t, ticket, privs...), PolicyMOfN)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

// TestAuthorizeSubmittedGate 提交条数不足时不做任何恢复运算直接拒绝
func TestAuthorizeSubmittedGate(t *testing.T) {
	v, privs := newTestVault(t, 3, 2, 3)
	ticket := sampleWithdrawal()

	_, err := v.Authorize(ticket, signBy(t, ticket, privs[0]), PolicyMOfN)
	require.ErrorIs(t, err, ErrInsufficientSignatures)

	_, err = v.Authorize(ticket, nil, PolicyMOfN)
	require.ErrorIs(t, err, ErrInsufficientSignatures)
}

// TestAuthorizeValidGate 条数够、但过滤后有效签名人不足
func TestAuthorizeValidGate(t *testing.T) {
	v, privs := newTestVault(t, 3, 2, 3)
	ticket := sampleWithdrawal()

	// 一个注册签名人 + 一个局外人：条数 2 过第一道门，有效数 1 被第二道门拒
	outsider, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	subs := signBy(t, ticket, privs[0], outsider)
	count, authErr := v.Authorize(ticket, subs, PolicyMOfN)
	require.ErrorIs(t, authErr, ErrInsufficientValidSignature)
	require.Equal(t, 1, count)
}

// TestAuthorizeDedup 同一签名人重复提交只算一个有效签名
func TestAuthorizeDedup(t *testing.T) {
	v, privs := newTestVault(t, 3, 2, 3)
	ticket := sampleWithdrawal()

	subs := signBy(t, ticket, privs[0], privs[0])
	_, err := v.Authorize(ticket, subs, PolicyMOfN)
	require.ErrorIs(t, err, ErrInsufficientValidSignature)
}

// TestAuthorizeGarbageDoesNotAbort 无法恢复的签名被静默跳过，
// 只要剩下的有效签名够数就放行
func TestAuthorizeGarbageDoesNotAbort(t *testing.T) {
	v, privs := newTestVault(t, 3, 2, 3)
	ticket := sampleWithdrawal()

	subs := signBy(t, ticket, privs[0], privs[1])
	var garbage SignerWithSignature
	for i := range garbage.Signature {
		garbage.Signature[i] = 0xab
	}
	subs = append(subs, garbage)

	count, err := v.Authorize(ticket, subs, PolicyMOfN)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

// TestAuthorizeWrongTicket 对另一张票据的签名恢复出的不是注册身份
func TestAuthorizeWrongTicket(t *testing.T) {
	v, privs := newTestVault(t, 2, 2, 2)
	ticket := sampleWithdrawal()
	other := sampleWithdrawal()
	other.RequestID++

	subs := signBy(t, other, privs[0], privs[1])
	_, err := v.Authorize(ticket, subs, PolicyMOfN)
	require.ErrorIs(t, err, ErrInsufficientValidSignature)
}

func TestAuthorizeAdminPolicy(t *testing.T) {
	v, privs := newTestVault(t, 3, 1, 3)
	ticket := &AddAssetTicket{RequestID: 7, Vault: v.VaultID, Asset: NativeAsset(), Expiry: 100, NetworkID: 101}

	// 管理阈值为 3：m 阈值够但管理阈值不够
	_, err := v.Authorize(ticket, signBy(t, ticket, privs[0]), PolicyAdmin)
	require.ErrorIs(t, err, ErrInsufficientSignatures)

	count, err := v.Authorize(ticket, signBy(t, ticket, privs...), PolicyAdmin)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestAuthorizeAtLeastOne(t *testing.T) {
	v, privs := newTestVault(t, 3, 3, 3)
	ticket := &AdminDepositTicket{RequestID: 9, Vault: v.VaultID, Expiry: 100, NetworkID: 101}

	// 存款路径：任意一个注册签名人即可，与 m/admin 阈值无关
	count, err := v.Authorize(ticket, signBy(t, ticket, privs[2]), PolicyAtLeastOne)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	outsider, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	_, authErr := v.Authorize(ticket, signBy(t, ticket, outsider), PolicyAtLeastOne)
	require.ErrorIs(t, authErr, ErrInsufficientValidSignature)
}

func TestRequiredValidCount(t *testing.T) {
	v := &Vault{MThreshold: 2, AdminThreshold: 3}
	require.Equal(t, 2, v.RequiredValidCount(PolicyMOfN))
	require.Equal(t, 3, v.RequiredValidCount(PolicyAdmin))
	require.Equal(t, 1, v.RequiredValidCount(PolicyAtLeastOne))
}

// TestSetRecoverCacheSize 换缓存不改变授权语义，非法值退回默认容量
func TestSetRecoverCacheSize(t *testing.T) {
	defer SetRecoverCacheSize(defaultRecoverCacheSize)

	v, privs := newTestVault(t, 3, 2, 3)
	ticket := sampleWithdrawal()
	subs := signBy(t, ticket, privs[0], privs[1])

	count, err := v.Authorize(ticket, subs, PolicyMOfN)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	SetRecoverCacheSize(8)
	count, err = v.Authorize(ticket, subs, PolicyMOfN)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	SetRecoverCacheSize(0)
	count, err = v.Authorize(ticket, subs, PolicyMOfN)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
