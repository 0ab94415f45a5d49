// vm/handlers.go
package vm

import (
	"errors"
	"fmt"
	"sync"

	"custody/config"
)

// HandlerRegistry Handler注册表
type HandlerRegistry struct {
	mu sync.RWMutex
	m  map[string]TicketHandler
}

// NewHandlerRegistry 创建新的注册表
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{m: make(map[string]TicketHandler)}
}

// Register 注册Handler
func (r *HandlerRegistry) Register(h TicketHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil {
		return errors.New("nil handler")
	}

	kind := h.Kind()
	if kind == "" {
		return errors.New("empty handler kind")
	}

	if _, ok := r.m[kind]; ok {
		return fmt.Errorf("duplicate handler kind: %s", kind)
	}
	r.m[kind] = h
	return nil
}

// Get 获取Handler
func (r *HandlerRegistry) Get(kind string) (TicketHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[kind]
	return h, ok
}

// List 列出所有已注册的Handler类型
func (r *HandlerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.m))
	for k := range r.m {
		kinds = append(kinds, k)
	}
	return kinds
}

// DefaultRegistry 注册全部内置 Handler
func DefaultRegistry(cfg *config.CustodyConfig) *HandlerRegistry {
	r := NewHandlerRegistry()
	for _, h := range []TicketHandler{
		&InitializeHandler{Cfg: cfg},
		&DepositHandler{Cfg: cfg},
		&CreateTokenAcctHandler{Cfg: cfg},
		&WithdrawHandler{Cfg: cfg},
		&BulkWithdrawHandler{Cfg: cfg},
		&AddAssetHandler{Cfg: cfg},
		&RemoveAssetHandler{Cfg: cfg},
		&RotateValidatorsHandler{Cfg: cfg},
		&AdminDepositHandler{Cfg: cfg},
		&AdminWithdrawHandler{Cfg: cfg},
	} {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
	return r
}
