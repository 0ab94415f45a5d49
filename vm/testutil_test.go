// vm/testutil_test.go
// 测试公用脚手架：内存视图、带真实密钥的金库、签名辅助
package vm

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"custody/config"
	"custody/utils"
	"custody/vault"
)

// newTestView 纯内存 StateView：读穿永远落空，只看 overlay
func newTestView() StateView {
	return NewStateView(func(string) ([]byte, error) { return nil, nil }, nil)
}

func testCfg() *config.CustodyConfig {
	cfg := config.DefaultConfig().Custody
	return &cfg
}

// testFixture 一个已初始化的金库环境
type testFixture struct {
	cfg      *config.CustodyConfig
	sv       StateView
	vault    vault.AccountID
	treasury vault.AccountID
	privs    []*secp256k1.PrivateKey
	mint     vault.AccountID
	now      int64
}

// newFixture 建一个 2-of-3 金库（管理阈值 3），白名单含原生币与一个代币，
// 并为金库创建该代币的池账户
func newFixture(t *testing.T) *testFixture {
	t.Helper()
	cfg := testCfg()
	sv := newTestView()

	privs := make([]*secp256k1.PrivateKey, 3)
	signers := make([]string, 3)
	for i := range privs {
		priv, err := utils.GenerateSigningKey()
		require.NoError(t, err)
		privs[i] = priv
		signers[i] = utils.SignerAddress(priv).Hex()
	}

	var mint vault.AccountID
	mint[0] = 0x77

	init := &InitializeHandler{Cfg: cfg}
	rcpt, err := init.Apply(&Request{Initialize: &InitializeParams{
		Authority:      vault.AccountID{0xAA},
		VaultSeed:      "desk-1",
		MThreshold:     2,
		AdminThreshold: 3,
		Signers:        signers,
		Whitelist:      []vault.Asset{vault.NativeAsset(), vault.TokenAsset(mint)},
	}}, sv, 1000)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	vaultID, _ := utils.DeriveAddress([]byte("vault"), []byte("desk-1"))
	treasuryID, _ := utils.DeriveAddress([]byte("treasury"), vaultID[:])

	// 金库的代币池账户
	cta := &CreateTokenAcctHandler{Cfg: cfg}
	rcpt, err = cta.Apply(&Request{CreateTokenAcct: &CreateTokenAcctParams{
		Vault:     vaultID,
		Authority: vault.AccountID{0xAA},
		Mint:      mint,
	}}, sv, 1000)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	return &testFixture{
		cfg:      cfg,
		sv:       sv,
		vault:    vaultID,
		treasury: treasuryID,
		privs:    privs,
		mint:     mint,
		now:      1000,
	}
}

// sign 让前 n 个签名人对票据签名
func (f *testFixture) sign(t *testing.T, ticket vault.Ticket, n int) []vault.SignerWithSignature {
	t.Helper()
	subs := make([]vault.SignerWithSignature, 0, n)
	hash := ticket.Hash()
	for i := 0; i < n; i++ {
		sig, recID := utils.SignRecoverable(f.privs[i], hash)
		subs = append(subs, vault.SignerWithSignature{Signature: sig, RecoveryID: recID})
	}
	return subs
}

// fundNative 直接往账户里塞原生币（模拟外部入账）
func (f *testFixture) fundNative(t *testing.T, addr vault.AccountID, amount uint64) {
	t.Helper()
	require.NoError(t, creditNative(f.sv, addr, amount))
}

// fundVaultNative 经 deposit 路径给 treasury 进账
func (f *testFixture) fundVaultNative(t *testing.T, amount uint64) {
	t.Helper()
	from := vault.AccountID{0xF0}
	f.fundNative(t, from, amount)
	h := &DepositHandler{Cfg: f.cfg}
	rcpt, err := h.Apply(&Request{Deposit: &DepositParams{
		Vault:  f.vault,
		From:   from,
		Asset:  vault.NativeAsset(),
		Amount: amount,
	}}, f.sv, f.now)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
}

// fundVaultToken 直接给金库代币池塞余额
func (f *testFixture) fundVaultToken(t *testing.T, amount uint64) {
	t.Helper()
	pool, err := resolveTokenAccount(f.sv, f.mint, f.vault)
	require.NoError(t, err)
	pool.Amount += amount
	require.NoError(t, putTokenAccount(f.sv, pool))
}

// makeRecipientTokenAccount 给收款人建代币账户
func (f *testFixture) makeRecipientTokenAccount(t *testing.T, owner vault.AccountID) {
	t.Helper()
	addr, _ := utils.DeriveAddress([]byte("token"), owner[:], f.mint[:])
	require.NoError(t, putTokenAccount(f.sv, &TokenAccount{
		Address: addr,
		Mint:    f.mint,
		Owner:   owner,
	}))
}

// nativeBalance 读账户原生币余额，不存在时为 0
func (f *testFixture) nativeBalance(t *testing.T, addr vault.AccountID) uint64 {
	t.Helper()
	acct, err := getAccount(f.sv, addr)
	require.NoError(t, err)
	if acct == nil {
		return 0
	}
	return acct.Balance
}

func (f *testFixture) tokenBalance(t *testing.T, owner vault.AccountID) uint64 {
	t.Helper()
	ta, err := resolveTokenAccount(f.sv, f.mint, owner)
	require.NoError(t, err)
	return ta.Amount
}

// withdrawalTicket 构造一张指向本金库的提现票据
func (f *testFixture) withdrawalTicket(requestID uint64, recipient vault.AccountID, lines ...vault.AssetAmount) *vault.WithdrawalTicket {
	return &vault.WithdrawalTicket{
		RequestID:   requestID,
		Vault:       f.vault,
		Recipient:   recipient,
		Withdrawals: lines,
		Expiry:      f.now + 3600,
		NetworkID:   f.cfg.NetworkID,
	}
}
