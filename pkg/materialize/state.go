package materialize

import "fmt"

// SyncState is the observable state of one sync worker.
type SyncState int32

const (
	StateInit SyncState = iota
	StateProbing
	StateSnapshotting
	StateStreaming
	StateCancelled
	StateFailed
)

func (s SyncState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateProbing:
		return "Probing"
	case StateSnapshotting:
		return "Snapshotting"
	case StateStreaming:
		return "Streaming"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown SyncState: %d", int32(s))
	}
}
