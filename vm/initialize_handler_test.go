// vm/initialize_handler_test.go
package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"custody/utils"
	"custody/vault"
)

func TestInitializeCreatesVaultAndTreasury(t *testing.T) {
	f := newFixture(t)

	v, err := getVault(f.sv, f.vault)
	require.NoError(t, err)
	require.Equal(t, uint8(2), v.MThreshold)
	require.Equal(t, uint8(3), v.AdminThreshold)
	require.Len(t, v.Signers, 3)
	require.Equal(t, f.treasury, v.TreasuryID())

	// treasury 由系统持有，初始可动用余额为 0
	treasury, err := getTreasury(f.sv, v)
	require.NoError(t, err)
	require.Equal(t, OwnerSystem, treasury.Owner)
	require.Equal(t, uint64(0), AvailableBalance(f.cfg, treasury))
}

func TestInitializeDuplicateVault(t *testing.T) {
	f := newFixture(t)

	h := &InitializeHandler{Cfg: f.cfg}
	signers := []string{utils.SignerAddress(f.privs[0]).Hex()}
	rcpt, err := h.Apply(&Request{Initialize: &InitializeParams{
		Authority:  vault.AccountID{0xAA},
		VaultSeed:  "desk-1", // 与 fixture 同一种子
		MThreshold: 1,
		Signers:    signers,
	}}, f.sv, f.now)
	require.Error(t, err)
	require.Equal(t, StatusFailed, rcpt.Status)
}

// TestInitializeDefaultAdminThreshold 管理阈值缺省时取签名人总数（全体一致）
func TestInitializeDefaultAdminThreshold(t *testing.T) {
	cfg := testCfg()
	sv := newTestView()
	h := &InitializeHandler{Cfg: cfg}

	signers := make([]string, 3)
	for i := range signers {
		priv, err := utils.GenerateSigningKey()
		require.NoError(t, err)
		signers[i] = utils.SignerAddress(priv).Hex()
	}

	rcpt, err := h.Apply(&Request{Initialize: &InitializeParams{
		Authority:  vault.AccountID{0x01},
		VaultSeed:  "s",
		MThreshold: 2,
		Signers:    signers,
	}}, sv, 0)
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, rcpt.Status)

	vaultID, _ := utils.DeriveAddress([]byte("vault"), []byte("s"))
	v, err := getVault(sv, vaultID)
	require.NoError(t, err)
	require.Equal(t, uint8(3), v.AdminThreshold)
}

func TestInitializeRejections(t *testing.T) {
	cfg := testCfg()
	h := &InitializeHandler{Cfg: cfg}

	priv, err := utils.GenerateSigningKey()
	require.NoError(t, err)
	good := utils.SignerAddress(priv).Hex()

	cases := []struct {
		name    string
		params  InitializeParams
		wantErr error
	}{
		{"no signers", InitializeParams{Authority: vault.AccountID{1}, VaultSeed: "a", MThreshold: 1}, vault.ErrInvalidSignersCount},
		{"m zero", InitializeParams{Authority: vault.AccountID{1}, VaultSeed: "a", Signers: []string{good}}, vault.ErrInvalidThreshold},
		{"m above n", InitializeParams{Authority: vault.AccountID{1}, VaultSeed: "a", MThreshold: 2, Signers: []string{good}}, vault.ErrInvalidThreshold},
		{"duplicate signer", InitializeParams{Authority: vault.AccountID{1}, VaultSeed: "a", MThreshold: 1, Signers: []string{good, good}}, vault.ErrDuplicateSigner},
		{"zero authority", InitializeParams{VaultSeed: "a", MThreshold: 1, Signers: []string{good}}, vault.ErrUnauthorizedUser},
	}

	for _, tc := range cases {
		sv := newTestView()
		p := tc.params
		rcpt, err := h.Apply(&Request{Initialize: &p}, sv, 0)
		require.ErrorIs(t, err, tc.wantErr, tc.name)
		require.Equal(t, StatusFailed, rcpt.Status, tc.name)
	}
}
