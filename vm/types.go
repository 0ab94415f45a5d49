// vm/types.go
package vm

import (
	"errors"

	"custody/vault"
)

// ========== 错误定义 ==========

var (
	ErrNotImplemented  = errors.New("not implemented")
	ErrNilRequest      = errors.New("nil request")
	ErrUnknownKind     = errors.New("unknown request kind")
	ErrInvalidSnapshot = errors.New("invalid snapshot index")
	ErrUnderflow       = errors.New("arithmetic underflow")
)

// ========== 基础类型定义 ==========

// WriteOp “要怎么改状态”的清单项
type WriteOp struct {
	Key      string // 完整的 key（包括命名空间前缀）
	Value    []byte // 序列化后的值
	Del      bool   // true 表示删除操作
	Category string // 数据分类：vault, nonce, account, token, receipt 等，便于追踪
}

// GetKey 获取 key
func (w *WriteOp) GetKey() string {
	return w.Key
}

// GetValue 获取 value
func (w *WriteOp) GetValue() []byte {
	return w.Value
}

// IsDel 是否删除操作
func (w *WriteOp) IsDel() bool {
	return w.Del
}

// Receipt 一次结算的执行回执
type Receipt struct {
	TicketHash   string   `json:"ticket_hash"` // 票据规范哈希（无票据操作为空）
	Kind         string   `json:"kind"`
	Vault        string   `json:"vault"`
	RequestID    uint64   `json:"request_id"`
	Status       string   `json:"status"` // "SUCCEED" or "FAILED"
	Error        string   `json:"error,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	ValidSigners int      `json:"valid_signers"` // 通过过滤的有效签名人数量
	WriteCount   int      `json:"write_count"`
	AuditTag     uint64   `json:"audit_tag"` // 票据哈希的 murmur 关联标签，方便日志检索
	Logs         []string `json:"logs,omitempty"`
}

const (
	StatusSucceed = "SUCCEED"
	StatusFailed  = "FAILED"
)

// ========== 请求定义 ==========

// 请求种类常量，同时作为 Handler 注册键
const (
	KindInitialize       = "initialize"
	KindDeposit          = "deposit"
	KindCreateTokenAcct  = "createVaultTokenAccount"
	KindWithdraw         = "withdraw"
	KindBulkWithdraw     = "bulkWithdraw"
	KindAddAsset         = "addAsset"
	KindRemoveAsset      = "removeAsset"
	KindRotateValidators = "rotateValidators"
	KindAdminDeposit     = "adminDeposit"
	KindAdminWithdraw    = "adminWithdraw"
)

// InitializeParams 创建金库（无票据，由发起人直接提交）
type InitializeParams struct {
	Authority      vault.AccountID `json:"authority"`
	VaultSeed      string          `json:"vault_seed"`
	MThreshold     uint8           `json:"m_threshold"`
	AdminThreshold uint8           `json:"admin_threshold"` // 0 表示默认为签名人总数（全体一致）
	Signers        []string        `json:"signers"`         // 0x 前缀的 20 字节地址
	Whitelist      []vault.Asset   `json:"whitelisted_assets,omitempty"`
}

// DepositParams 普通入金（无票据、无签名，白名单约束）
type DepositParams struct {
	Vault  vault.AccountID `json:"vault"`
	From   vault.AccountID `json:"from"`
	Asset  vault.Asset     `json:"asset"`
	Amount uint64          `json:"amount"`
}

// CreateTokenAcctParams 为金库创建某 mint 的代币账户（仅 authority）
type CreateTokenAcctParams struct {
	Vault     vault.AccountID `json:"vault"`
	Authority vault.AccountID `json:"authority"`
	Mint      vault.AccountID `json:"mint"`
}

// Request 一次结算请求：恰好一个变体字段非 nil，Kind 与之对应。
// 带票据的变体额外携带签名集合。
type Request struct {
	Kind string `json:"kind"`

	Initialize      *InitializeParams             `json:"initialize,omitempty"`
	Deposit         *DepositParams                `json:"deposit,omitempty"`
	CreateTokenAcct *CreateTokenAcctParams        `json:"create_token_account,omitempty"`
	Withdrawal      *vault.WithdrawalTicket       `json:"withdrawal,omitempty"`
	BulkWithdrawal  *vault.BulkWithdrawalTicket   `json:"bulk_withdrawal,omitempty"`
	AddAsset        *vault.AddAssetTicket         `json:"add_asset,omitempty"`
	RemoveAsset     *vault.RemoveAssetTicket      `json:"remove_asset,omitempty"`
	Rotate          *vault.RotateValidatorsTicket `json:"rotate,omitempty"`
	AdminDeposit    *vault.AdminDepositTicket     `json:"admin_deposit,omitempty"`
	AdminWithdrawal *vault.WithdrawalTicket       `json:"admin_withdrawal,omitempty"`

	// 随票据提交的签名集合（无票据操作忽略）
	Signatures []vault.SignerWithSignature `json:"signatures,omitempty"`

	// 批量路径：调用方声明的 nonce 记录地址，逐一与派生地址比对
	NonceAddresses []vault.AccountID `json:"nonce_addresses,omitempty"`

	// 批量路径的旁路元数据，只记日志不参与哈希
	Metadata string `json:"metadata,omitempty"`
}

// VaultID 请求指向的金库地址（initialize 返回零值，由 handler 自行派生）
func (r *Request) VaultID() vault.AccountID {
	switch {
	case r.Deposit != nil:
		return r.Deposit.Vault
	case r.CreateTokenAcct != nil:
		return r.CreateTokenAcct.Vault
	case r.Withdrawal != nil:
		return r.Withdrawal.Vault
	case r.BulkWithdrawal != nil && len(r.BulkWithdrawal.Tickets) > 0:
		return r.BulkWithdrawal.Tickets[0].Vault
	case r.AddAsset != nil:
		return r.AddAsset.Vault
	case r.RemoveAsset != nil:
		return r.RemoveAsset.Vault
	case r.Rotate != nil:
		return r.Rotate.Vault
	case r.AdminDeposit != nil:
		return r.AdminDeposit.Vault
	case r.AdminWithdrawal != nil:
		return r.AdminWithdrawal.Vault
	}
	return vault.AccountID{}
}

// KindOf 从已填充的变体推断请求种类；显式 Kind 优先
func KindOf(r *Request) (string, error) {
	if r == nil {
		return "", ErrNilRequest
	}
	if r.Kind != "" {
		return r.Kind, nil
	}
	switch {
	case r.Initialize != nil:
		return KindInitialize, nil
	case r.Deposit != nil:
		return KindDeposit, nil
	case r.CreateTokenAcct != nil:
		return KindCreateTokenAcct, nil
	case r.Withdrawal != nil:
		return KindWithdraw, nil
	case r.BulkWithdrawal != nil:
		return KindBulkWithdraw, nil
	case r.AddAsset != nil:
		return KindAddAsset, nil
	case r.RemoveAsset != nil:
		return KindRemoveAsset, nil
	case r.Rotate != nil:
		return KindRotateValidators, nil
	case r.AdminDeposit != nil:
		return KindAdminDeposit, nil
	case r.AdminWithdrawal != nil:
		return KindAdminWithdraw, nil
	}
	return "", ErrUnknownKind
}
