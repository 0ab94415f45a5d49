// handlers/submit.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"custody/vm"
)

// handleSubmit 返回某一种结算请求的提交处理器。
// 所有提交路由共用同一套流程：解码、查已见缓存、交给引擎、回执作答。
func (hm *HandlerManager) handleSubmit(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hm.recordAPICall()
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, hm.cfg.Server.MaxRequestBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		var req vm.Request
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request json: "+err.Error())
			return
		}
		// 路由决定种类，body 里写了也以路由为准
		req.Kind = kind

		// 快速去重：同一张票据短时间内重复提交直接拒绝，
		// 不再走完整的恢复/结算路径
		fp, hasTicket := hm.ticketFingerprint(&req)
		if hasTicket {
			if _, seen := hm.seenTickets.Get(fp); seen {
				writeError(w, http.StatusConflict, "ticket already submitted")
				return
			}
		}

		receipt, err := hm.engine.Execute(&req)
		if err != nil {
			if receipt == nil {
				// 路由不到 handler 之类的前置错误
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			// 结算失败：回执携带错误，状态码区别于成功路径
			writeJSON(w, http.StatusUnprocessableEntity, receipt)
			return
		}

		if hasTicket {
			hm.seenTickets.Add(fp, struct{}{})
		}
		writeJSON(w, http.StatusOK, receipt)
	}
}
