// vm/rotate_handler.go
// 签名人轮换：旧集合按管理阈值授权，整体替换签名人与 M 阈值。
// 管理阈值本身不随轮换变化，新集合必须仍能满足它。
package vm

import (
	"github.com/ethereum/go-ethereum/common"

	"custody/config"
	"custody/vault"
)

// RotateValidatorsHandler 签名人轮换处理器
type RotateValidatorsHandler struct {
	Cfg *config.CustodyConfig
}

func (h *RotateValidatorsHandler) Kind() string {
	return KindRotateValidators
}

func (h *RotateValidatorsHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	t := req.Rotate
	if t == nil {
		return nil, ErrNilRequest
	}
	rcpt := newReceipt(KindRotateValidators, t.Vault, t.RequestID, now).withTicket(t.Hash())

	v, err := getVault(sv, t.Vault)
	if err != nil {
		return rcpt.fail(err)
	}
	if err := checkTicketEnvelope(v, t.Vault, t.NetworkID, t.Expiry, now); err != nil {
		return rcpt.fail(err)
	}

	// 新集合先过校验，再看授权。管理阈值沿用现值，新集合人数不能低于它。
	if len(t.Signers) > h.Cfg.MaxSigners {
		return rcpt.fail(vault.ErrInvalidSignersCount)
	}
	if err := vault.ValidateSignerSet(t.Signers, t.MThreshold, v.AdminThreshold); err != nil {
		return rcpt.fail(err)
	}

	// 授权由"旧"签名人集合做出：被换下去的人批准换班
	validCount, err := v.Authorize(t, req.Signatures, vault.PolicyAdmin)
	if err != nil {
		rcpt.ValidSigners = validCount
		return rcpt.fail(err)
	}
	rcpt.ValidSigners = validCount

	if err := reserveNonce(sv, t.Vault, t.RequestID, true); err != nil {
		return rcpt.fail(err)
	}

	v.Signers = append([]common.Address(nil), t.Signers...)
	v.MThreshold = t.MThreshold
	if err := putVault(sv, v); err != nil {
		return rcpt.fail(err)
	}

	return rcpt.succeed(validCount)
}
