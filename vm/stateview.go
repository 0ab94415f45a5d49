// vm/stateview.go
package vm

import (
	"strings"
	"sync"
)

// ========== StateView内部类型 ==========

// ovVal overlay中的值
type ovVal struct {
	val      []byte
	exist    bool   // false表示已删除
	category string // 数据分类
}

// change 变更记录，用于回滚
type change struct {
	key     string
	prev    ovVal
	hasPrev bool
}

// ========== StateView实现 ==========

// overlayStateView StateView的内存实现。
// 读穿到底层存储，写只进 overlay；Diff() 导出整个写集。
type overlayStateView struct {
	mu        sync.RWMutex
	read      ReadThroughFn
	scan      ScanFn
	overlay   map[string]ovVal
	changelog []change
}

// NewStateView 创建新的StateView。scan 可以为 nil（纯内存场景）。
func NewStateView(read ReadThroughFn, scan ScanFn) StateView {
	return &overlayStateView{
		read:      read,
		scan:      scan,
		overlay:   make(map[string]ovVal, 64),
		changelog: make([]change, 0, 64),
	}
}

func (s *overlayStateView) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.overlay[key]; ok {
		if !v.exist { // 已被标记删除
			return nil, false, nil
		}
		// 返回副本，避免外部修改
		result := make([]byte, len(v.val))
		copy(result, v.val)
		return result, true, nil
	}

	// 读穿到底层存储
	val, err := s.read(key)
	if err != nil {
		return nil, false, err
	}
	if val == nil {
		return nil, false, nil
	}
	return val, true, nil
}

func (s *overlayStateView) Set(key string, val []byte) {
	s.setWithCategory(key, val, "")
}

// SetWithCategory 设置值并标注数据分类，落库侧按分类维护索引
func (s *overlayStateView) SetWithCategory(key string, val []byte, category string) {
	s.setWithCategory(key, val, category)
}

func (s *overlayStateView) setWithCategory(key string, val []byte, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, has := s.overlay[key]
	s.changelog = append(s.changelog, change{key: key, prev: prev, hasPrev: has})
	// 复制值，避免外部修改影响内部状态
	valCopy := make([]byte, len(val))
	copy(valCopy, val)
	s.overlay[key] = ovVal{val: valCopy, exist: true, category: category}
}

func (s *overlayStateView) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, has := s.overlay[key]
	s.changelog = append(s.changelog, change{key: key, prev: prev, hasPrev: has})
	s.overlay[key] = ovVal{val: nil, exist: false}
}

func (s *overlayStateView) Snapshot() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.changelog)
}

func (s *overlayStateView) Revert(snap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap < 0 || snap > len(s.changelog) {
		return ErrInvalidSnapshot
	}

	// 回滚到snap之前的状态
	for i := len(s.changelog) - 1; i >= snap; i-- {
		c := s.changelog[i]
		if c.hasPrev {
			s.overlay[c.key] = c.prev
		} else {
			delete(s.overlay, c.key)
		}
	}
	s.changelog = s.changelog[:snap]
	return nil
}

func (s *overlayStateView) Diff() []WriteOp {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diff := make([]WriteOp, 0, len(s.overlay))
	for k, v := range s.overlay {
		valCopy := make([]byte, len(v.val))
		copy(valCopy, v.val)
		diff = append(diff, WriteOp{
			Key:      k,
			Value:    valCopy,
			Del:      !v.exist,
			Category: v.category,
		})
	}
	return diff
}

// Scan 先扫底层，再叠加 overlay：新写的键加入结果，删除的键剔除
func (s *overlayStateView) Scan(prefix string) (map[string][]byte, error) {
	base := make(map[string][]byte)
	if s.scan != nil {
		scanned, err := s.scan(prefix)
		if err != nil {
			return nil, err
		}
		for k, v := range scanned {
			base[k] = v
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.overlay {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !v.exist {
			delete(base, k)
			continue
		}
		valCopy := make([]byte, len(v.val))
		copy(valCopy, v.val)
		base[k] = valCopy
	}
	return base, nil
}
