package scxslo

import "sync/atomic"

// CPUSelector answers the host-placement questions the Scheduler State
// Machine needs for select_cpu: which CPU to place a task on, and
// whether a candidate CPU is currently idle. It stands in for the
// original's scx_bpf_select_cpu_dfl plus the kernel's own idle-CPU
// mask: the engine never inspects host topology itself.
type CPUSelector interface {
	// SelectCPU returns a candidate CPU index in [0, NumCPUs) for tid,
	// given the CPU it last ran on and host-supplied wake flags.
	SelectCPU(tid TID, prevCPU int, wakeFlags uint32) int
	// IsIdle reports whether cpu has no runnable task right now.
	IsIdle(cpu int) bool
	// NumCPUs reports how many CPUs the selector can place work on.
	NumCPUs() int
}

// RoundRobinSelector is the default CPUSelector: it returns prevCPU
// when that is a valid index, otherwise hands out CPUs in round-robin
// order regardless of task identity, and treats every CPU as idle. Good enough for a host with no topology or load
// information to express, and trivially reproducible in tests.
type RoundRobinSelector struct {
	numCPUs int
	next    atomic.Uint64
}

// NewRoundRobinSelector returns a selector spreading work evenly over
// numCPUs CPUs. numCPUs must be positive; a non-positive value is
// treated as 1.
func NewRoundRobinSelector(numCPUs int) *RoundRobinSelector {
	if numCPUs <= 0 {
		numCPUs = 1
	}
	return &RoundRobinSelector{numCPUs: numCPUs}
}

func (r *RoundRobinSelector) SelectCPU(_ TID, prevCPU int, _ uint32) int {
	if prevCPU >= 0 && prevCPU < r.numCPUs {
		return prevCPU
	}
	n := r.next.Add(1) - 1
	return int(n % uint64(r.numCPUs))
}

func (r *RoundRobinSelector) IsIdle(cpu int) bool {
	return cpu >= 0 && cpu < r.numCPUs
}

func (r *RoundRobinSelector) NumCPUs() int {
	return r.numCPUs
}
