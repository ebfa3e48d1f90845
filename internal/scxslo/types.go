// Package scxslo implements the SLO-aware earliest-deadline-first
// scheduling core: per-workload budget/importance configuration,
// per-task deadline tracking, the enqueue/run/stop state machine, and
// the bookkeeping (deadline-miss detection, rate-limited event
// emission, per-CPU counters) needed to observe it safely.
//
// Everything in this package is on, or directly supports, the hot
// scheduling path and therefore depends only on the standard library.
package scxslo

// WID is the opaque workload identifier supplied by the host. The
// engine never derives semantics from it.
type WID uint64

// TID is a task identifier, unique over currently-tracked tasks. A
// host may reuse a TID after the task it named has terminated.
type TID uint32

const (
	// MinBudgetNS is the smallest latency budget a SloCfg may declare.
	MinBudgetNS uint64 = 1_000_000
	// MaxBudgetNS is the largest latency budget a SloCfg may declare.
	MaxBudgetNS uint64 = 10_000_000_000
	// DefaultBudgetNS is used whenever a workload has no validated
	// configuration on record.
	DefaultBudgetNS uint64 = 100_000_000

	// MinImportance and MaxImportance bound SloCfg.Importance.
	MinImportance uint32 = 1
	MaxImportance uint32 = 100

	// MaxWorkloads bounds the Config Store.
	MaxWorkloads = 10_000
	// MaxTasks bounds the Task Context Store.
	MaxTasks = 100_000

	// MaxEventsPerWindow and WindowNS parameterize the per-CPU rate
	// limiter guarding miss-event emission.
	MaxEventsPerWindow = 1_000
	WindowNS           uint64 = 1_000_000_000

	// defaultImportance is used whenever a workload has no validated
	// configuration on record, matching the original's
	// "cfg ? cfg->importance : 50" fallback in simple_enqueue.
	defaultImportance uint32 = 50
)

// u64Max is the saturation ceiling used by the deadline overflow check.
const u64Max uint64 = ^uint64(0)

// SloCfg is a per-workload service-level configuration: a latency
// budget and a relative importance weight. flags is reserved and must
// be zero.
type SloCfg struct {
	BudgetNS   uint64
	Importance uint32
	Flags      uint32
}

// TaskCtx is the per-task scheduling state the engine maintains between
// enqueue and stop. Deadline and StartTime are independent fields on
// purpose: miss detection must consult the absolute deadline recorded
// at enqueue, never the task's own runtime.
type TaskCtx struct {
	Deadline  uint64
	StartTime uint64
	BudgetNS  uint64
	Valid     bool
}

// DeadlineEvent is an observability record describing one missed
// deadline. Its wire encoding (see Encode/Decode in events.go) is
// fixed at 24 bytes, little-endian, fields in declaration order.
type DeadlineEvent struct {
	WorkloadID WID
	MissNS     uint64
	Timestamp  uint64
}

// EventWireSize is the canonical serialized size of a DeadlineEvent
// per spec §6.2.
const EventWireSize = 24
