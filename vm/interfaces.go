// vm/interfaces.go
package vm

// ========== 核心接口定义 ==========

// StateView 状态视图接口
type StateView interface {
	// 读/写/删某个 key 的状态；写入只写进这个视图，不直接落到底层 DB。
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte)
	Del(key string)
	// 做一个快照点、必要时回滚到该点，实现失败整笔回滚。
	Snapshot() int
	Revert(snap int) error
	// 把这次结算期间累积的写入集合（写集）导出来，给后续"真正落库"用。
	Diff() []WriteOp
	// 扫描指定前缀下的所有键值对（用于代币账户解析等场景），
	// 底层结果与 overlay 合并，已删除的键不出现。
	Scan(prefix string) (map[string][]byte, error)
}

// TicketHandler 结算请求处理器接口。
// Apply 在给定 StateView 上执行一次请求的全部校验与状态写入，
// 成功返回回执；失败返回错误，调用方负责丢弃整个视图。
type TicketHandler interface {
	// 标识这个 Handler 处理哪种请求（比如 "withdraw"）。
	Kind() string
	Apply(req *Request, sv StateView, now int64) (*Receipt, error)
}

// DBManager 数据库管理器接口
type DBManager interface {
	EnqueueSet(key, value string)
	EnqueueDel(key string)
	ForceFlush() error
	Get(key string) ([]byte, error)
	// 前缀扫描，返回所有以 prefix 开头的键值对
	Scan(prefix string) (map[string][]byte, error)
	// 一次结算的写集整批落库：一个写事务内全部成功或全部失败。
	// 批量提现的"整笔原子提交"就落在这里。
	ApplyDiff(diff []WriteOp) error
}

// ReadThroughFn 当 StateView.Get 本地 overlay 没命中时，
// 定义"如何从底层存储读真实值"的函数签名。
// 让结算视图在不落库的情况下依然能读到最新持久状态。
type ReadThroughFn func(key string) ([]byte, error)

// ScanFn 用于 StateView 从底层存储做前缀扫描
type ScanFn func(prefix string) (map[string][]byte, error)
