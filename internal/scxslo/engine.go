package scxslo

import "time"

// Options configures a new Engine. The zero value of each field is
// replaced with a sensible default by NewEngine, following the same
// constructor-with-defaults shape the rest of this codebase uses for
// its other components.
type Options struct {
	// Clock supplies "now" for deadline computation and miss
	// detection. Defaults to a SystemClock.
	Clock Clock
	// Selector picks the candidate CPU and answers the idle-CPU query
	// for select_cpu; Enqueue does not consult it. Defaults to a
	// RoundRobinSelector sized by NumCPUs.
	Selector CPUSelector
	// NumCPUs sizes the default Selector and the Counters/RateLimiter
	// shards when the caller doesn't supply Selector directly.
	// Defaults to 1.
	NumCPUs int
	// ConfigCapacity bounds the Config Store. Defaults to
	// MaxWorkloads.
	ConfigCapacity int
	// TaskCapacity bounds the Task Context Store. Defaults to
	// MaxTasks.
	TaskCapacity int
	// EventCapacity bounds the EventSink's ring buffer. Defaults to
	// 4096.
	EventCapacity int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = NewSystemClock()
	}
	if o.NumCPUs <= 0 {
		o.NumCPUs = 1
	}
	if o.Selector == nil {
		o.Selector = NewRoundRobinSelector(o.NumCPUs)
	}
	if o.ConfigCapacity <= 0 {
		o.ConfigCapacity = MaxWorkloads
	}
	if o.TaskCapacity <= 0 {
		o.TaskCapacity = MaxTasks
	}
	if o.EventCapacity <= 0 {
		o.EventCapacity = 4096
	}
	return o
}

// Engine is the scheduler state machine (C6) wired up over the Config
// Store, Task Context Store, Deadline Queue, Rate Limiter, Event Sink
// and Counters. It is the single entry point a host's scheduling hooks
// drive; none of its collaborators are meant to be used directly
// outside tests.
type Engine struct {
	clock    Clock
	selector CPUSelector

	configs  *ConfigStore
	tasks    *TaskCtxStore
	queue    *DeadlineQueue
	limiter  *RateLimiter
	sink     *EventSink
	counters *Counters
}

// NewEngine builds an Engine from opts, filling in defaults for any
// field left unset.
func NewEngine(opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		clock:    opts.Clock,
		selector: opts.Selector,
		configs:  NewConfigStoreWithCapacity(opts.ConfigCapacity),
		tasks:    NewTaskCtxStoreWithCapacity(opts.TaskCapacity),
		queue:    NewDeadlineQueue(),
		limiter:  NewRateLimiter(opts.Selector.NumCPUs()),
		sink:     NewEventSink(opts.EventCapacity),
		counters: NewCounters(opts.Selector.NumCPUs()),
	}
}

// Now returns the engine's current clock reading.
func (e *Engine) Now() uint64 {
	return e.clock.Now()
}

// UpsertConfig validates and installs cfg for wid. The caller decides
// whether to log, reject the workload, or retry on a non-nil
// ConfigError; the engine never stores an invalid record.
func (e *Engine) UpsertConfig(wid WID, cfg SloCfg) ConfigError {
	return e.configs.Upsert(wid, cfg)
}

// RemoveConfig deletes wid's configuration, if any, and reports
// whether one existed.
func (e *Engine) RemoveConfig(wid WID) bool {
	return e.configs.Remove(wid)
}

// GetConfig returns wid's current configuration, if any.
func (e *Engine) GetConfig(wid WID) (SloCfg, bool) {
	return e.configs.Get(wid)
}

// effectiveBudget computes eff = budget_ns * (101 - imp) / 100 using
// 64-bit integer arithmetic: at imp=100, eff = budget/100 (earliest
// deadline, highest priority); at imp=1, eff = budget (latest
// deadline).
func effectiveBudget(budgetNS uint64, importance uint32) uint64 {
	imp := clampImportance(importance)
	weight := uint64(101 - imp)
	return budgetNS * weight / 100
}

// saturatingAdd adds b to a, clamping to u64Max instead of wrapping.
func saturatingAdd(a, b uint64) uint64 {
	if b > u64Max-a {
		return u64Max
	}
	return a + b
}

// SelectCPU consults the configured CPUSelector for a candidate CPU
// for tid (last seen on prevCPU, waking with wakeFlags). If the
// candidate is idle, the engine counts a local dispatch; this step is
// observational only and makes no change to the Deadline Queue or any
// TaskCtx.
func (e *Engine) SelectCPU(tid TID, prevCPU int, wakeFlags uint32) (cpu int, localDispatch bool) {
	cpu = e.selector.SelectCPU(tid, prevCPU, wakeFlags)
	if e.selector.IsIdle(cpu) {
		e.counters.Inc(cpu, CounterLocalDispatches)
		return cpu, true
	}
	return cpu, false
}

// Enqueue admits tid into the scheduler under workload wid: it
// increments the global-enqueue counter, computes tid's absolute
// deadline from wid's configuration (falling back to
// DefaultBudgetNS/defaultImportance via safe_budget when wid has no
// valid configuration on record), and records a fresh TaskCtx.
//
// If the Task Context Store has no free slot, Enqueue performs the
// fallback enqueue: it reports fellBack=true and leaves no per-task
// context or Deadline Queue entry behind, trusting the host's own
// global queue to still run the task. No error is ever returned to
// the host; enqueue has no failure mode it cannot absorb locally.
func (e *Engine) Enqueue(cpu int, tid TID, wid WID, enqFlags uint32) (deadline uint64, fellBack bool) {
	e.counters.Inc(cpu, CounterGlobalEnqueues)

	now := e.clock.Now()
	budget := e.configs.SafeBudget(wid)
	importance := defaultImportance
	if cfg, ok := e.configs.Get(wid); ok {
		importance = cfg.Importance
	}
	eff := effectiveBudget(budget, importance)
	deadline = saturatingAdd(now, eff)

	ctx := TaskCtx{
		Deadline:  deadline,
		StartTime: 0,
		BudgetNS:  budget,
		Valid:     true,
	}
	if !e.tasks.Upsert(tid, ctx) {
		e.counters.Inc(cpu, CounterTaskStoreExhausted)
		return deadline, true
	}
	e.queue.Push(tid, deadline)
	return deadline, false
}

// Running records that tid has entered the Running state at the
// engine's current time. It has no effect on the Deadline Queue: a
// task is only removed from it by Stopping(runnable=false). A tid with
// no context, or one whose context is not valid, is left untouched.
func (e *Engine) Running(tid TID) {
	ctx, ok := e.tasks.Get(tid)
	if !ok || !ctx.Valid {
		return
	}
	ctx.StartTime = e.clock.Now()
	e.tasks.Upsert(tid, ctx)
}

// Stopping records that tid (owned by wid) has left the Running state.
// If its recorded absolute deadline has already passed (strictly, not
// at equality), a miss occurred; miss_ns is measured against that
// deadline, never against tid's own start_time, so that misses caused
// by scheduling delay are detected the same as misses caused by long
// runtime. A permitted miss is emitted as a DeadlineEvent and counted;
// a miss the Rate Limiter suppresses, or one the Event Sink has no
// room for, is counted as a rate-limited drop instead (§4.7, §6.3).
//
// If runnable is false, tid's context is removed from the Deadline
// Queue and the Task Context Store. If runnable is true, the context
// is left in place for the next enqueue to reinitialize.
func (e *Engine) Stopping(cpu int, tid TID, wid WID, runnable bool) (missed bool, emitted bool) {
	ctx, ok := e.tasks.Get(tid)
	if !ok || !ctx.Valid {
		return false, false
	}

	now := e.clock.Now()
	if now > ctx.Deadline {
		missed = true
		missNS := now - ctx.Deadline
		if e.limiter.Allow(cpu, now) {
			if dropped := e.sink.Emit(DeadlineEvent{
				WorkloadID: wid,
				MissNS:     missNS,
				Timestamp:  now,
			}); dropped {
				e.counters.Inc(cpu, CounterRateLimitedDrops)
			} else {
				e.counters.Inc(cpu, CounterDeadlineMissesTotal)
				e.counters.Add(cpu, CounterMissDurationNsSum, missNS)
				emitted = true
			}
		} else {
			e.counters.Inc(cpu, CounterRateLimitedDrops)
		}
	}

	if !runnable {
		e.queue.Remove(tid)
		e.tasks.Remove(tid)
	}
	return missed, emitted
}

// GetTask returns the TaskCtx recorded for tid, if any.
func (e *Engine) GetTask(tid TID) (TaskCtx, bool) {
	return e.tasks.Get(tid)
}

// QueueLen reports the number of tasks currently waiting in the
// Deadline Queue.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// PopDeadline removes and returns the tid with the smallest deadline
// in the Deadline Queue, for a host's own dispatch loop.
func (e *Engine) PopDeadline() (TID, uint64, bool) {
	return e.queue.Pop()
}

// Poll drains up to maxEvents pending DeadlineEvents, waiting up to
// timeout for at least one to arrive.
func (e *Engine) Poll(maxEvents int, timeout time.Duration) []DeadlineEvent {
	return e.sink.Poll(maxEvents, timeout)
}

// ReadCounters returns the cumulative counter snapshot described in
// the Counter Consumer interface.
func (e *Engine) ReadCounters() CounterSnapshot {
	return e.counters.Snapshot()
}

// DroppedEvents reports how many DeadlineEvents the Event Sink had no
// room for; each one is also folded into CounterRateLimitedDrops via
// ReadCounters, but this accessor is kept for operators who want the
// Event Sink's own view of consumer backpressure.
func (e *Engine) DroppedEvents() uint64 {
	return e.sink.Dropped()
}
