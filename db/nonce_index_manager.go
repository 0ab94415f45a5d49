// db/nonce_index_manager.go
package db

import (
	"encoding/json"
	"sync"

	"custody/keys"
	"custody/logs"
	"custody/vault"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/dgraph-io/badger/v2"
)

// NonceIndexManager 负责：
//  1. 启动时扫描 DB，把已用的 request id 恢复到 RoaringBitmap；
//  2. 结算落库后实时 MarkUsed；
//  3. 提供快速 IsUsed 查询（权威判定仍在 nonce 记录本身）。
//
// 普通与管理 nonce 各一套按金库分组的位图，命名空间互不影响。
type NonceIndexManager struct {
	mu     sync.RWMutex
	used   map[string]*roaring64.Bitmap // vault hex -> 普通 nonce 位图
	admin  map[string]*roaring64.Bitmap // vault hex -> 管理 nonce 位图
	db     *badger.DB
	Logger logs.Logger
}

// ----------  初始化 / 恢复  ----------

func NewNonceIndexManager(db *badger.DB, logger logs.Logger) (*NonceIndexManager, error) {
	m := &NonceIndexManager{
		used:   make(map[string]*roaring64.Bitmap),
		admin:  make(map[string]*roaring64.Bitmap),
		db:     db,
		Logger: logger,
	}
	if err := m.RebuildFromDB(); err != nil {
		return nil, err
	}
	return m, nil
}

// RebuildFromDB 扫描全部 nonce 记录，重建两套位图
func (m *NonceIndexManager) RebuildFromDB() error {
	rebuiltUsed := make(map[string]*roaring64.Bitmap)
	rebuiltAdmin := make(map[string]*roaring64.Bitmap)
	count := 0

	// v1_nonce_ 与 v1_admin_nonce_ 两个前缀互不包含，各扫各的
	for _, prefix := range []string{
		keys.NameOfKeyAllNoncePrefix(),
		keys.NameOfKeyAllAdminNoncePrefix(),
	} {
		err := m.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			it := txn.NewIterator(opts)
			defer it.Close()

			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil))
				vaultHex, requestID, admin, ok := keys.ParseNonceKey(key)
				if !ok {
					continue
				}
				raw, err := item.ValueCopy(nil)
				if err != nil {
					continue
				}
				var rec vault.NonceRecord
				if err := json.Unmarshal(raw, &rec); err != nil || !rec.Used {
					continue
				}
				target := rebuiltUsed
				if admin {
					target = rebuiltAdmin
				}
				bm := target[vaultHex]
				if bm == nil {
					bm = roaring64.New()
					target[vaultHex] = bm
				}
				bm.Add(requestID)
				count++
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.used = rebuiltUsed
	m.admin = rebuiltAdmin
	m.mu.Unlock()
	m.Logger.Info("[NonceIndexManager] rebuilt bitmaps with %d used nonces", count)
	return nil
}

// ----------  运行时维护  ----------

// MarkUsed 实现 vm.NonceIndexer，结算成功落库后由引擎调用
func (m *NonceIndexManager) MarkUsed(vaultHex string, requestID uint64, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.used
	if admin {
		target = m.admin
	}
	bm := target[vaultHex]
	if bm == nil {
		bm = roaring64.New()
		target[vaultHex] = bm
	}
	bm.Add(requestID)
}

// IsUsed 查询某个 request id 是否已被消耗。
// 只读内存位图，可能落后于正在进行的结算，只适合做快速预检。
func (m *NonceIndexManager) IsUsed(vaultHex string, requestID uint64, admin bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target := m.used
	if admin {
		target = m.admin
	}
	bm := target[vaultHex]
	return bm != nil && bm.Contains(requestID)
}

// UsedCount 某个金库已消耗的 request id 数
func (m *NonceIndexManager) UsedCount(vaultHex string, admin bool) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target := m.used
	if admin {
		target = m.admin
	}
	bm := target[vaultHex]
	if bm == nil {
		return 0
	}
	return bm.GetCardinality()
}
