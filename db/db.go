// db/db.go
package db

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"custody/config"
	"custody/logs"
	"custody/vm"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
)

// Manager 封装 BadgerDB 的管理器。
// 回执等流水数据走异步写队列；结算写集走 ApplyDiff，单个写事务内整批落库。
type Manager struct {
	Db *badger.DB
	mu sync.RWMutex

	// 队列通道，批量写的 goroutine 用它来取写请求
	writeQueueChan chan WriteTask
	// 强制刷盘通道
	forceFlushChan chan flushRequest
	// 用于通知写队列 goroutine 停止
	stopChan chan struct{}

	// 写队列运行统计（用于观测吞吐与背压）
	writeQueueEnqueueTotal    uint64
	writeQueueDequeuedTotal   uint64
	writeQueueFlushBatchTotal uint64
	writeQueueFlushedTotal    uint64
	writeQueueFlushErrTotal   uint64
	writeQueueForceFlushTotal uint64

	// 累计多少条就写一次 / 间隔多久强制写一次
	maxBatchSize  int
	flushInterval time.Duration

	// 已用 request id 的内存位图索引
	NonceIdx *NonceIndexManager

	wg     sync.WaitGroup
	Logger logs.Logger
	cfg    *config.Config
}

type flushRequest struct {
	done chan error
}

// NewManager 创建一个新的 DBManager 实例
func NewManager(path string, logger logs.Logger) (*Manager, error) {
	return NewManagerWithConfig(path, logger, nil)
}

// NewManagerWithConfig 创建 DBManager，可选注入整份 Config
func NewManagerWithConfig(path string, logger logs.Logger, cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	opts.ValueLogFileSize = cfg.Database.ValueLogFileSize
	// 使用 FileIO 模式减少 mmap 内存占用
	opts.TableLoadingMode = options.FileIO
	opts.ValueLogLoadingMode = options.FileIO

	// badger v2 不自动创建父目录，需要手动创建
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	nonceIdx, err := NewNonceIndexManager(db, logger)
	if err != nil {
		_ = db.Close() // 清理已打开的数据库
		return nil, fmt.Errorf("failed to create nonce index manager: %w", err)
	}

	manager := &Manager{
		Db:       db,
		NonceIdx: nonceIdx,
		Logger:   logger,
		cfg:      cfg,
	}
	return manager, nil
}

// InitWriteQueue 启动异步写队列 goroutine
func (manager *Manager) InitWriteQueue(maxBatchSize int, flushInterval time.Duration) {
	cfg := manager.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	manager.maxBatchSize = maxBatchSize
	manager.flushInterval = flushInterval
	manager.writeQueueChan = make(chan WriteTask, cfg.Database.WriteQueueSize)
	manager.forceFlushChan = make(chan flushRequest, 1)
	manager.stopChan = make(chan struct{})

	manager.wg.Add(1)
	go manager.runWriteQueue()
}

func (manager *Manager) runWriteQueue() {
	defer manager.wg.Done()

	batch := make([]WriteTask, 0, manager.maxBatchSize)
	ticker := time.NewTicker(manager.flushInterval)
	defer ticker.Stop()

	flushCurrentBatch := func() error {
		count := len(batch)
		if count == 0 {
			return nil
		}
		err := manager.flushBatch(batch)
		atomic.AddUint64(&manager.writeQueueFlushBatchTotal, 1)
		atomic.AddUint64(&manager.writeQueueFlushedTotal, uint64(count))
		if err != nil {
			atomic.AddUint64(&manager.writeQueueFlushErrTotal, 1)
		}
		batch = batch[:0]
		return err
	}

	for {
		select {
		case <-manager.stopChan:
			// 退出前先排空队列，再刷掉最后一批
			batch = manager.drainWriteQueue(batch)
			err := flushCurrentBatch()
			manager.resolvePendingForceFlush(err)
			return

		case task := <-manager.writeQueueChan:
			atomic.AddUint64(&manager.writeQueueDequeuedTotal, 1)
			batch = append(batch, task)
			if len(batch) >= manager.maxBatchSize {
				if err := flushCurrentBatch(); err != nil {
					logs.Error("[runWriteQueue] flush by size failed: %v", err)
				}
			}

		case <-ticker.C:
			// 定时触发时先排空当前队列积压，避免频繁小批次 flush
			batch = manager.drainWriteQueue(batch)
			if err := flushCurrentBatch(); err != nil {
				logs.Error("[runWriteQueue] flush by ticker failed: %v", err)
			}

		case req := <-manager.forceFlushChan:
			// 同步 flush：排空已入队写请求并等待落盘完成
			atomic.AddUint64(&manager.writeQueueForceFlushTotal, 1)
			batch = manager.drainWriteQueue(batch)
			err := flushCurrentBatch()
			manager.finishForceFlush(req, err)
		}
	}
}

// ForceFlush 同步刷盘：等待当前已入队的写请求全部落库
func (manager *Manager) ForceFlush() error {
	if manager.forceFlushChan == nil {
		return nil
	}

	req := flushRequest{done: make(chan error, 1)}

	select {
	case manager.forceFlushChan <- req:
	case <-manager.stopChan:
		return fmt.Errorf("write queue already stopped")
	}

	select {
	case err := <-req.done:
		return err
	case <-manager.stopChan:
		select {
		case err := <-req.done:
			return err
		default:
		}
		return fmt.Errorf("write queue stopped before flush completed")
	}
}

func (manager *Manager) drainWriteQueue(batch []WriteTask) []WriteTask {
	for {
		select {
		case task := <-manager.writeQueueChan:
			atomic.AddUint64(&manager.writeQueueDequeuedTotal, 1)
			batch = append(batch, task)
		default:
			return batch
		}
	}
}

func (manager *Manager) finishForceFlush(req flushRequest, err error) {
	req.done <- err
	close(req.done)
}

func (manager *Manager) resolvePendingForceFlush(err error) {
	for {
		select {
		case req := <-manager.forceFlushChan:
			manager.finishForceFlush(req, err)
		default:
			return
		}
	}
}

// EnqueueSet 异步写入一条记录（回执等非结算数据）
func (manager *Manager) EnqueueSet(key, value string) {
	manager.writeQueueChan <- WriteTask{
		Key:   []byte(key),
		Value: []byte(value),
		Op:    OpSet,
	}
	atomic.AddUint64(&manager.writeQueueEnqueueTotal, 1)
}

// EnqueueDel 异步删除一条记录
func (manager *Manager) EnqueueDel(key string) {
	manager.writeQueueChan <- WriteTask{
		Key: []byte(key),
		Op:  OpDelete,
	}
	atomic.AddUint64(&manager.writeQueueEnqueueTotal, 1)
}

func (manager *Manager) flushBatch(batch []WriteTask) error {
	if len(batch) == 0 {
		return nil
	}
	cfg := manager.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	maxCountPerTxn := cfg.Database.MaxCountPerTxn

	// 先按条数把 batch 切成若干 sub-batch，再提交；若仍报过大，二分退让
	var firstErr error
	for start := 0; start < len(batch); start += maxCountPerTxn {
		end := start + maxCountPerTxn
		if end > len(batch) {
			end = len(batch)
		}
		if err := manager.flushRangeWithSplit(batch, start, end); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (manager *Manager) flushRangeWithSplit(batch []WriteTask, start, end int) error {
	type sliceRange struct{ i, j int }

	stack := []sliceRange{{i: start, j: end}}
	var firstErr error

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.i >= cur.j {
			continue
		}

		ok, err := manager.tryFlushRange(batch, cur.i, cur.j)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			continue
		}
		if cur.j-cur.i <= 1 {
			continue
		}

		mid := cur.i + (cur.j-cur.i)/2
		stack = append(stack, sliceRange{i: mid, j: cur.j}, sliceRange{i: cur.i, j: mid})
	}

	return firstErr
}

// 返回是否提交成功；若返回 false，调用方应继续拆分范围重试。
func (manager *Manager) tryFlushRange(batch []WriteTask, start, end int) (bool, error) {
	if start >= end {
		return true, nil
	}
	sub := batch[start:end]

	wb := manager.Db.NewWriteBatch()
	defer wb.Cancel()

	for _, task := range sub {
		var err error
		switch task.Op {
		case OpSet:
			err = wb.Set(task.Key, task.Value)
		case OpDelete:
			err = wb.Delete(task.Key)
		}
		if err != nil {
			if isTxnTooBig(err) {
				if end-start == 1 {
					msg := fmt.Errorf("single entry too big for badger: key=%q size=%d bytes",
						string(sub[0].Key), len(sub[0].Value))
					manager.Logger.Error("[flushBatch] %v", msg)
					return true, msg
				}
				return false, nil
			}
			logs.Error("[flushBatch] subBatch [%d:%d] set/delete error: %v", start, end, err)
			return true, err
		}
	}

	err := wb.Flush()
	if err == nil {
		return true, nil
	}
	if isTxnTooBig(err) {
		if end-start == 1 {
			msg := fmt.Errorf("single entry still too big: key=%q size=%d bytes",
				string(sub[0].Key), len(sub[0].Value))
			manager.Logger.Error("[flushBatch] %v", msg)
			return true, msg
		}
		return false, nil
	}

	logs.Error("[flushBatch] subBatch [%d:%d] error: %v", start, end, err)
	return true, err
}

// Badger 的典型报错文案里包含 "Txn is too big"
func isTxnTooBig(err error) bool {
	return errors.Is(err, badger.ErrTxnTooBig) || strings.Contains(err.Error(), "Txn is too big")
}

// ApplyDiff 把一次结算的写集整批落库：一个 WriteBatch 内全部成功或全部失败。
// 批量提现的整笔原子提交依赖这里的语义。
func (manager *Manager) ApplyDiff(diff []vm.WriteOp) error {
	if len(diff) == 0 {
		return nil
	}

	manager.mu.RLock()
	db := manager.Db
	manager.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("database is not initialized or closed")
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	for _, op := range diff {
		var err error
		if op.Del {
			err = wb.Delete([]byte(op.Key))
		} else {
			err = wb.Set([]byte(op.Key), op.Value)
		}
		if err != nil {
			return fmt.Errorf("apply diff failed at key %q: %w", op.Key, err)
		}
	}
	return wb.Flush()
}

// Get 读取键对应的值；键不存在时返回 (nil, nil)。
// vm.StateView 的读穿靠这个约定区分"没有"和"出错"。
func (manager *Manager) Get(key string) ([]byte, error) {
	manager.mu.RLock()
	db := manager.Db
	manager.mu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database is not initialized or closed")
	}

	var value []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = val
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// Scan 扫描指定前缀的所有键值对
func (manager *Manager) Scan(prefix string) (map[string][]byte, error) {
	manager.mu.RLock()
	db := manager.Db
	manager.mu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database is not initialized or closed")
	}

	result := make(map[string][]byte)
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(k)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WriteQueueStats 返回写队列累计计数：入队 / 出队 / 刷盘批次 / 刷盘条数 / 刷盘错误
func (manager *Manager) WriteQueueStats() (enqueued, dequeued, flushBatches, flushed, flushErrs uint64) {
	return atomic.LoadUint64(&manager.writeQueueEnqueueTotal),
		atomic.LoadUint64(&manager.writeQueueDequeuedTotal),
		atomic.LoadUint64(&manager.writeQueueFlushBatchTotal),
		atomic.LoadUint64(&manager.writeQueueFlushedTotal),
		atomic.LoadUint64(&manager.writeQueueFlushErrTotal)
}

// Close 先排空写队列，再关闭数据库
func (manager *Manager) Close() {
	// 1. 先做一次同步 flush，确保已经入队的写请求全部落盘
	if manager.forceFlushChan != nil {
		if err := manager.ForceFlush(); err != nil {
			logs.Error("[db.Close] force flush failed: %v", err)
		}
	}

	// 2. 通知写队列 goroutine 停止
	if manager.stopChan != nil {
		select {
		case <-manager.stopChan:
			// already closed
		default:
			close(manager.stopChan)
		}
	}

	// 3. 等待 goroutine 退出
	manager.wg.Wait()
	manager.stopChan = nil
	manager.forceFlushChan = nil

	// 4. 这时队列里的数据都已经 flush 完了，可以安全关闭 DB
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.Db != nil {
		_ = manager.Db.Close()
		manager.Db = nil
	}
}
