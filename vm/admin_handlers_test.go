// vm/admin_handlers_test.go
// 白名单维护、签名人轮换、管理员入金
package vm

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"custody/utils"
	"custody/vault"
)

func (f *testFixture) addAssetTicket(requestID uint64, asset vault.Asset) *vault.AddAssetTicket {
	return &vault.AddAssetTicket{
		RequestID: requestID,
		Vault:     f.vault,
		Asset:     asset,
		Expiry:    f.now + 3600,
		NetworkID: f.cfg.NetworkID,
	}
}

func TestAddRemoveAsset(t *testing.T) {
	f := newFixture(t)
	var newMint vault.AccountID
	newMint[0] = 0x99
	asset := vault.TokenAsset(newMint)

	// 管理阈值为 3：2 个签名不够
	add := &AddAssetHandler{Cfg: f.cfg}
	ticket := f.addAssetTicket(1, asset)
	_, err := add.Apply(&Request{AddAsset: ticket, Signatures: f.sign(t, ticket, 2)}, f.sv, f.now)
	require.ErrorIs(t, err, vault.ErrInsufficientSignatures)

	rcpt, err := add.Apply(&Request{AddAsset: ticket, Signatures: f.sign(t, ticket, 3)}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	v, err := getVault(f.sv, f.vault)
	require.NoError(t, err)
	require.True(t, v.IsWhitelisted(asset))

	// 重复加入是幂等空操作（新 request id，照常成功）
	again := f.addAssetTicket(2, asset)
	rcpt, err = add.Apply(&Request{AddAsset: again, Signatures: f.sign(t, again, 3)}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
	v, _ = getVault(f.sv, f.vault)
	require.Len(t, v.Whitelist, 3) // native + fixture mint + newMint，没有重复条目

	// 移除
	remove := &RemoveAssetHandler{Cfg: f.cfg}
	rm := &vault.RemoveAssetTicket{RequestID: 3, Vault: f.vault, Asset: asset, Expiry: f.now + 3600, NetworkID: f.cfg.NetworkID}
	rcpt, err = remove.Apply(&Request{RemoveAsset: rm, Signatures: f.sign(t, rm, 3)}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
	v, _ = getVault(f.sv, f.vault)
	require.False(t, v.IsWhitelisted(asset))

	// 移除不存在的资产也是幂等空操作
	rm2 := &vault.RemoveAssetTicket{RequestID: 4, Vault: f.vault, Asset: asset, Expiry: f.now + 3600, NetworkID: f.cfg.NetworkID}
	rcpt, err = remove.Apply(&Request{RemoveAsset: rm2, Signatures: f.sign(t, rm2, 3)}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
}

// TestAddRemoveAssetShareAdminNonce 加/删资产共用 admin nonce 空间，
// request id 不能跨操作复用
func TestAddRemoveAssetShareAdminNonce(t *testing.T) {
	f := newFixture(t)
	var m vault.AccountID
	m[0] = 0x55

	add := &AddAssetHandler{Cfg: f.cfg}
	ticket := f.addAssetTicket(9, vault.TokenAsset(m))
	_, err := add.Apply(&Request{AddAsset: ticket, Signatures: f.sign(t, ticket, 3)}, f.sv, f.now)
	require.NoError(t, err)

	remove := &RemoveAssetHandler{Cfg: f.cfg}
	rm := &vault.RemoveAssetTicket{RequestID: 9, Vault: f.vault, Asset: vault.TokenAsset(m), Expiry: f.now + 3600, NetworkID: f.cfg.NetworkID}
	_, err = remove.Apply(&Request{RemoveAsset: rm, Signatures: f.sign(t, rm, 3)}, f.sv, f.now)
	require.ErrorIs(t, err, vault.ErrNonceAlreadyUsed)
}

// TestNonceRecordAddressPerNamespace 两个命名空间各用各的派生种子落记录
func TestNonceRecordAddressPerNamespace(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, reserveNonce(f.sv, f.vault, 42, true))
	rec, err := loadNonce(f.sv, f.vault, 42, true)
	require.NoError(t, err)
	require.Equal(t, vault.DeriveAdminNonceAddress(f.vault, 42), rec.Address)

	// 同一 request id 在普通空间互不干扰，地址来自普通种子
	require.NoError(t, reserveNonce(f.sv, f.vault, 42, false))
	rec, err = loadNonce(f.sv, f.vault, 42, false)
	require.NoError(t, err)
	require.Equal(t, vault.DeriveNonceAddress(f.vault, 42), rec.Address)
}

func TestRotateValidators(t *testing.T) {
	f := newFixture(t)
	f.fundVaultNative(t, 1_000)

	// 新的签名人集合：3 把新钥匙，m=2
	newPrivs := make([]*secp256k1.PrivateKey, 3)
	newSigners := make([]common.Address, 3)
	for i := range newPrivs {
		priv, err := utils.GenerateSigningKey()
		require.NoError(t, err)
		newPrivs[i] = priv
		newSigners[i] = utils.SignerAddress(priv)
	}

	ticket := &vault.RotateValidatorsTicket{
		RequestID:  1,
		Vault:      f.vault,
		Signers:    newSigners,
		MThreshold: 2,
		Expiry:     f.now + 3600,
		NetworkID:  f.cfg.NetworkID,
	}

	// 轮换由旧集合按管理阈值(3)授权
	h := &RotateValidatorsHandler{Cfg: f.cfg}
	rcpt, err := h.Apply(&Request{Rotate: ticket, Signatures: f.sign(t, ticket, 3)}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	v, err := getVault(f.sv, f.vault)
	require.NoError(t, err)
	require.Equal(t, newSigners, v.Signers)
	require.Equal(t, uint8(2), v.MThreshold)
	// 管理阈值不随轮换变化
	require.Equal(t, uint8(3), v.AdminThreshold)

	// 旧集合签出的提现票据不再被承认
	recipient := vault.AccountID{0xBB}
	wd := f.withdrawalTicket(2, recipient, vault.AssetAmount{Asset: vault.NativeAsset(), Amount: 10})
	wh := &WithdrawHandler{Cfg: f.cfg}
	_, err = wh.Apply(&Request{Withdrawal: wd, Signatures: f.sign(t, wd, 2)}, f.sv, f.now)
	require.ErrorIs(t, err, vault.ErrInsufficientValidSignature)

	// 新集合 2-of-3 生效
	hash := wd.Hash()
	subs := make([]vault.SignerWithSignature, 2)
	for i := 0; i < 2; i++ {
		sig, recID := utils.SignRecoverable(newPrivs[i], hash)
		subs[i] = vault.SignerWithSignature{Signature: sig, RecoveryID: recID}
	}
	rcpt, err = wh.Apply(&Request{Withdrawal: wd, Signatures: subs}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
}

// TestRotateRejectsSetBelowAdminThreshold 新集合人数不能低于现行管理阈值
func TestRotateRejectsSetBelowAdminThreshold(t *testing.T) {
	f := newFixture(t)

	small := make([]common.Address, 2)
	for i := range small {
		priv, err := utils.GenerateSigningKey()
		require.NoError(t, err)
		small[i] = utils.SignerAddress(priv)
	}

	ticket := &vault.RotateValidatorsTicket{
		RequestID:  1,
		Vault:      f.vault,
		Signers:    small,
		MThreshold: 1,
		Expiry:     f.now + 3600,
		NetworkID:  f.cfg.NetworkID,
	}
	h := &RotateValidatorsHandler{Cfg: f.cfg}
	_, err := h.Apply(&Request{Rotate: ticket, Signatures: f.sign(t, ticket, 3)}, f.sv, f.now)
	require.ErrorIs(t, err, vault.ErrInvalidAdminThreshold)
}

func TestAdminDeposit(t *testing.T) {
	f := newFixture(t)
	user := vault.AccountID{0xCC}
	f.fundNative(t, user, 1_000)

	ticket := &vault.AdminDepositTicket{
		RequestID: 1,
		Vault:     f.vault,
		User:      user,
		Deposits:  []vault.AssetAmount{{Asset: vault.NativeAsset(), Amount: 600}},
		Expiry:    f.now + 3600,
		NetworkID: f.cfg.NetworkID,
	}

	// 管理员入金只要求任意一个注册签名人
	h := &AdminDepositHandler{Cfg: f.cfg}
	rcpt, err := h.Apply(&Request{AdminDeposit: ticket, Signatures: f.sign(t, ticket, 1)}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	require.Equal(t, uint64(400), f.nativeBalance(t, user))
	v, _ := getVault(f.sv, f.vault)
	treasury, err := getTreasury(f.sv, v)
	require.NoError(t, err)
	require.Equal(t, uint64(600), AvailableBalance(f.cfg, treasury))

	// 非白名单资产进不来
	var stray vault.AccountID
	stray[0] = 0xEE
	bad := &vault.AdminDepositTicket{
		RequestID: 2,
		Vault:     f.vault,
		User:      user,
		Deposits:  []vault.AssetAmount{{Asset: vault.TokenAsset(stray), Amount: 1}},
		Expiry:    f.now + 3600,
		NetworkID: f.cfg.NetworkID,
	}
	_, err = h.Apply(&Request{AdminDeposit: bad, Signatures: f.sign(t, bad, 1)}, f.sv, f.now)
	require.ErrorIs(t, err, vault.ErrAssetNotWhitelisted)

	// 空清单
	empty := &vault.AdminDepositTicket{RequestID: 3, Vault: f.vault, User: user, Expiry: f.now + 3600, NetworkID: f.cfg.NetworkID}
	_, err = h.Apply(&Request{AdminDeposit: empty, Signatures: f.sign(t, empty, 1)}, f.sv, f.now)
	require.ErrorIs(t, err, vault.ErrNoDepositsProvided)
}
