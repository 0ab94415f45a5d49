// vm/engine_test.go
// 引擎层：原子提交、失败请求零落库、nonce 索引维护
package vm

import (
	"strings"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"custody/utils"
	"custody/vault"
)

// mockDB 内存版 DBManager
type mockDB struct {
	mu        sync.Mutex
	data      map[string][]byte
	applies   int
	failApply bool
}

func newMockDB() *mockDB {
	return &mockDB{data: make(map[string][]byte)}
}

func (m *mockDB) EnqueueSet(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = []byte(value)
}

func (m *mockDB) EnqueueDel(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *mockDB) ForceFlush() error { return nil }

func (m *mockDB) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mockDB) Scan(prefix string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *mockDB) ApplyDiff(diff []WriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failApply {
		return ErrNotImplemented
	}
	m.applies++
	for _, op := range diff {
		if op.Del {
			delete(m.data, op.Key)
			continue
		}
		m.data[op.Key] = op.Value
	}
	return nil
}

// mockNonceIndex 记录 MarkUsed 调用
type mockNonceIndex struct {
	mu    sync.Mutex
	calls []uint64
}

func (m *mockNonceIndex) MarkUsed(vaultHex string, requestID uint64, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, requestID)
}

// engineFixture 通过引擎路径搭好的金库环境
func newEngineFixture(t *testing.T) (*Engine, *mockDB, *testFixtureKeys) {
	t.Helper()
	db := newMockDB()
	eng := NewEngine(db, testCfg())

	keysFx := &testFixtureKeys{}
	signers := make([]string, 3)
	for i := range keysFx.privs {
		priv, err := utils.GenerateSigningKey()
		require.NoError(t, err)
		keysFx.privs[i] = priv
		signers[i] = utils.SignerAddress(priv).Hex()
	}

	rcpt, err := eng.Execute(&Request{Initialize: &InitializeParams{
		Authority:  vault.AccountID{0xAA},
		VaultSeed:  "desk-e",
		MThreshold: 2,
		Signers:    signers,
		Whitelist:  []vault.Asset{vault.NativeAsset()},
	}})
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	keysFx.vault, _ = utils.DeriveAddress([]byte("vault"), []byte("desk-e"))
	return eng, db, keysFx
}

type testFixtureKeys struct {
	privs [3]*secp256k1.PrivateKey
	vault vault.AccountID
}

func TestEngineCommitsOnSuccess(t *testing.T) {
	eng, db, fx := newEngineFixture(t)

	// 资金从外部账户经 deposit 进 treasury
	from := vault.AccountID{0xF0}
	seedAccount(t, db, from, 1_000)

	rcpt, err := eng.Execute(&Request{Deposit: &DepositParams{
		Vault: fx.vault, From: from, Asset: vault.NativeAsset(), Amount: 500,
	}})
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
	require.Greater(t, rcpt.WriteCount, 0)
	require.Equal(t, 2, db.applies) // initialize + deposit

	// 提现走完整路径并维护 nonce 索引
	idx := &mockNonceIndex{}
	eng.SetNonceIndexer(idx)

	recipient := vault.AccountID{0xBB}
	ticket := &vault.WithdrawalTicket{
		RequestID:   42,
		Vault:       fx.vault,
		Recipient:   recipient,
		Withdrawals: []vault.AssetAmount{{Asset: vault.NativeAsset(), Amount: 100}},
		Expiry:      nowUnix() + 3600,
		NetworkID:   testCfg().NetworkID,
	}
	hash := ticket.Hash()
	subs := make([]vault.SignerWithSignature, 2)
	for i := 0; i < 2; i++ {
		sig, recID := utils.SignRecoverable(fx.privs[i], hash)
		subs[i] = vault.SignerWithSignature{Signature: sig, RecoveryID: recID}
	}

	rcpt, err = eng.Execute(&Request{Withdrawal: ticket, Signatures: subs})
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
	require.Equal(t, []uint64{42}, idx.calls)

	// 重放被持久状态挡住
	_, err = eng.Execute(&Request{Withdrawal: ticket, Signatures: subs})
	require.ErrorIs(t, err, vault.ErrNonceAlreadyUsed)
}

// TestEngineDiscardsFailedRequests 失败请求不产生任何持久写入
func TestEngineDiscardsFailedRequests(t *testing.T) {
	eng, db, fx := newEngineFixture(t)

	before := countNonReceiptKeys(db)
	applies := db.applies

	// 余额不足的提现
	ticket := &vault.WithdrawalTicket{
		RequestID:   1,
		Vault:       fx.vault,
		Recipient:   vault.AccountID{0xBB},
		Withdrawals: []vault.AssetAmount{{Asset: vault.NativeAsset(), Amount: 10_000}},
		Expiry:      nowUnix() + 3600,
		NetworkID:   testCfg().NetworkID,
	}
	hash := ticket.Hash()
	subs := make([]vault.SignerWithSignature, 2)
	for i := 0; i < 2; i++ {
		sig, recID := utils.SignRecoverable(fx.privs[i], hash)
		subs[i] = vault.SignerWithSignature{Signature: sig, RecoveryID: recID}
	}

	rcpt, err := eng.Execute(&Request{Withdrawal: ticket, Signatures: subs})
	require.ErrorIs(t, err, vault.ErrInsufficientFunds)
	require.Equal(t, StatusFailed, rcpt.Status)
	require.Equal(t, applies, db.applies) // 没有新的 ApplyDiff

	// 除了诊断回执，没有新增任何键
	require.Equal(t, before, countNonReceiptKeys(db))

	// request id 1 仍然可用
	ticket.Withdrawals[0].Amount = 1
	// 余额 1 也没有，先入金
	from := vault.AccountID{0xF0}
	seedAccount(t, db, from, 100)
	_, err = eng.Execute(&Request{Deposit: &DepositParams{Vault: fx.vault, From: from, Asset: vault.NativeAsset(), Amount: 100}})
	require.NoError(t, err)

	hash = ticket.Hash()
	for i := 0; i < 2; i++ {
		sig, recID := utils.SignRecoverable(fx.privs[i], hash)
		subs[i] = vault.SignerWithSignature{Signature: sig, RecoveryID: recID}
	}
	rcpt, err = eng.Execute(&Request{Withdrawal: ticket, Signatures: subs})
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)
}

func TestEngineUnknownKind(t *testing.T) {
	eng, _, _ := newEngineFixture(t)
	_, err := eng.Execute(&Request{Kind: "no-such-kind"})
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = eng.Execute(&Request{})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func countNonReceiptKeys(db *mockDB) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for k := range db.data {
		if strings.HasPrefix(k, "v1_receipt_") {
			continue
		}
		n++
	}
	return n
}

// seedAccount 直接往 mock DB 写一个账户记录
func seedAccount(t *testing.T, db *mockDB, addr vault.AccountID, balance uint64) {
	t.Helper()
	sv := NewStateView(db.Get, db.Scan)
	require.NoError(t, creditNative(sv, addr, balance))
	require.NoError(t, db.ApplyDiff(sv.Diff()))
	db.applies-- // 种子数据不计入断言
}
