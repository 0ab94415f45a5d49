// vm/bulk_withdraw_handler.go
// 批量提现的两阶段结算。
// A 阶段只读：结构检查、整批签名授权、逐票信封与 nonce 预检、
// 按资产聚合总额并一次性验偿付能力。
// B 阶段才写：逐票消耗 nonce、逐行转账。任何一票失败整批作废，
// 写集不会提交，所以不存在"付了一半"的状态。
package vm

import (
	"custody/config"
	"custody/logs"
	"custody/vault"
)

// BulkWithdrawHandler 批量提现处理器
type BulkWithdrawHandler struct {
	Cfg *config.CustodyConfig
}

func (h *BulkWithdrawHandler) Kind() string {
	return KindBulkWithdraw
}

func (h *BulkWithdrawHandler) Apply(req *Request, sv StateView, now int64) (*Receipt, error) {
	bulk := req.BulkWithdrawal
	if bulk == nil {
		return nil, ErrNilRequest
	}

	var vaultID vault.AccountID
	var firstReqID uint64
	if len(bulk.Tickets) > 0 {
		vaultID = bulk.Tickets[0].Vault
		firstReqID = bulk.Tickets[0].RequestID
	}
	rcpt := newReceipt(KindBulkWithdraw, vaultID, firstReqID, now).withTicket(bulk.Hash())

	// ========== A 阶段：全量校验，不写任何状态 ==========

	// 1. 整批结构
	if len(bulk.Tickets) == 0 {
		return rcpt.fail(vault.ErrNoWithdrawalsProvided)
	}
	if len(bulk.Tickets) > h.Cfg.MaxBulkTickets {
		return rcpt.fail(vault.ErrTooManyTickets)
	}
	// 每张票对应一个调用方声明的 nonce 槽位
	if len(req.NonceAddresses) != len(bulk.Tickets) {
		return rcpt.fail(vault.ErrInsufficientAccounts)
	}

	v, err := getVault(sv, vaultID)
	if err != nil {
		return rcpt.fail(err)
	}

	// 2. 整批签名：对批量票据哈希做 M-of-N 授权，单票不再重复验签
	validCount, err := v.Authorize(bulk, req.Signatures, vault.PolicyMOfN)
	if err != nil {
		rcpt.ValidSigners = validCount
		return rcpt.fail(err)
	}
	rcpt.ValidSigners = validCount

	// 3. 逐票预检 + 按资产聚合
	//    批内 request id 不允许重复，收款人逐票解析
	seenReqIDs := make(map[uint64]struct{}, len(bulk.Tickets))
	totals := make(map[vault.Asset]uint64)

	for i := range bulk.Tickets {
		t := &bulk.Tickets[i]

		if err := checkTicketEnvelope(v, t.Vault, t.NetworkID, t.Expiry, now); err != nil {
			return rcpt.fail(err)
		}
		if t.Recipient.IsZero() {
			return rcpt.fail(vault.ErrInvalidRecipient)
		}
		if _, ok := seenReqIDs[t.RequestID]; ok {
			return rcpt.fail(vault.ErrDuplicateRequestID)
		}
		seenReqIDs[t.RequestID] = struct{}{}

		if err := checkWithdrawalLines(h.Cfg, t.Withdrawals); err != nil {
			return rcpt.fail(err)
		}

		// 声明的 nonce 槽位必须与派生地址一致，防止偷换槽位骗过重放检查
		if req.NonceAddresses[i] != vault.DeriveNonceAddress(vaultID, t.RequestID) {
			return rcpt.fail(vault.ErrInvalidNonceAccount)
		}
		if err := checkNonceUnused(sv, vaultID, t.RequestID, false); err != nil {
			return rcpt.fail(err)
		}

		// 聚合：任何一次溢出都让整批失败，而不是回绕后少付。
		// 代币行的收款侧账户也在这里按票确认恰好存在一个
		for _, line := range t.Withdrawals {
			if !line.Asset.IsNative() {
				if _, err := resolveTokenAccount(sv, line.Asset.Mint, t.Recipient); err != nil {
					return rcpt.fail(err)
				}
			}
			total, err := SafeAdd(totals[line.Asset], line.Amount)
			if err != nil {
				return rcpt.fail(err)
			}
			totals[line.Asset] = total
		}
	}

	// 4. 聚合偿付能力：原生币对 treasury 可动用余额，代币对金库池余额
	for asset, total := range totals {
		if asset.IsNative() {
			treasury, err := getTreasury(sv, v)
			if err != nil {
				return rcpt.fail(err)
			}
			if total > AvailableBalance(h.Cfg, treasury) {
				return rcpt.fail(vault.ErrInsufficientFunds)
			}
			continue
		}
		pool, err := resolveTokenAccount(sv, asset.Mint, v.VaultID)
		if err != nil {
			return rcpt.fail(err)
		}
		if total > pool.Amount {
			return rcpt.fail(vault.ErrInsufficientFunds)
		}
	}

	// ========== B 阶段：消耗 nonce、执行转账 ==========

	for i := range bulk.Tickets {
		t := &bulk.Tickets[i]

		// 先标记后转账，与单票路径同一纪律
		if err := reserveNonce(sv, vaultID, t.RequestID, false); err != nil {
			return rcpt.fail(err)
		}
		for _, line := range t.Withdrawals {
			if err := settleWithdrawalLine(h.Cfg, sv, v, t.Recipient, line); err != nil {
				return rcpt.fail(err)
			}
		}
	}

	if req.Metadata != "" {
		logs.Info("bulk withdrawal metadata: vault=%s tickets=%d meta=%q tag=%d",
			vaultID, len(bulk.Tickets), req.Metadata, rcpt.AuditTag)
		rcpt.Logs = append(rcpt.Logs, req.Metadata)
	}

	return rcpt.succeed(validCount)
}
