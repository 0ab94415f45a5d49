// vm/receipt.go
package vm

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"custody/utils"
	"custody/vault"
)

// newReceipt 初始化回执骨架，状态由 fail/succeed 填写
func newReceipt(kind string, vaultID vault.AccountID, requestID uint64, now int64) *Receipt {
	return &Receipt{
		Kind:      kind,
		Vault:     vaultID.String(),
		RequestID: requestID,
		Timestamp: now,
	}
}

// withTicket 记录票据哈希并打上审计关联标签
func (r *Receipt) withTicket(hash common.Hash) *Receipt {
	r.TicketHash = hash.Hex()
	r.AuditTag = utils.MurmurTag(hash[:])
	return r
}

// fail 填写失败状态并把错误原样带回给调用方
func (r *Receipt) fail(err error) (*Receipt, error) {
	r.Status = StatusFailed
	r.Error = err.Error()
	return r, err
}

func (r *Receipt) succeed(validSigners int) (*Receipt, error) {
	r.Status = StatusSucceed
	r.ValidSigners = validSigners
	return r, nil
}

// nowUnix 便于测试替换
var nowUnix = func() int64 { return time.Now().Unix() }
