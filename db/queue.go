// db/queue.go
package db

// WriteTask 写队列里的一条待落库记录
type WriteTask struct {
	Key   []byte
	Value []byte
	Op    WriteOp // Set 或 Delete
}

type WriteOp int

const (
	OpSet WriteOp = iota
	OpDelete
)
