// Package scheduler 实现引擎的定时任务队列
//
// 任务按触发时间排序，同一时间按提交顺序执行。
// 任务归属于一个 owner（agent ID），只能按 owner 整体取消。
//
// Scheduler 不是并发安全的，所有方法都必须在引擎的事件循环上调用。
package scheduler

import (
	"container/heap"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// Infinite 表示未布防的唤醒时间
var Infinite = time.Unix(math.MaxInt64>>1, 0)

// ArmFunc 在最早唤醒时间变化时被调用，由事件循环重置平台定时器
type ArmFunc func(at time.Time)

// Scheduler 定时任务队列
type Scheduler struct {
	clock clock.Clock
	queue taskQueue
	seq   uint64

	// armed 当前已布防的唤醒时间；排空期间为 Infinite
	armed    time.Time
	draining bool

	arm   ArmFunc
	flush func()
}

// New 创建调度器
//
// arm 在需要更早唤醒时调用；flush 在每批任务执行完成后调用。二者均可为 nil。
func New(clk clock.Clock, arm ArmFunc, flush func()) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock: clk,
		armed: Infinite,
		arm:   arm,
		flush: flush,
	}
}

// Now 返回调度器时间
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// PostTask 提交一个在 at 时刻执行的任务
func (s *Scheduler) PostTask(owner uint64, fn func(), at time.Time) {
	s.seq++
	heap.Push(&s.queue, &task{owner: owner, fn: fn, at: at, seq: s.seq})

	// 排空期间只入队，结束后统一重新布防
	if s.draining {
		return
	}
	if at.Before(s.armed) {
		s.armed = at
		if s.arm != nil {
			s.arm(at)
		}
	}
}

// CancelAll 取消 owner 的所有任务，返回取消数量
//
// 可在任意时刻调用，包括 owner 自己的任务执行期间。
func (s *Scheduler) CancelAll(owner uint64) int {
	kept := s.queue[:0]
	removed := 0
	for _, t := range s.queue {
		if t.owner == owner {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
	if removed > 0 {
		heap.Init(&s.queue)
	}
	return removed
}

// Wake 执行所有已到期的任务，然后 flush 并重新布防
//
// 嵌套调用被忽略：排空期间提交的任务只入队，到期的在本轮继续执行。
func (s *Scheduler) Wake() {
	if s.draining {
		return
	}
	s.draining = true
	s.armed = Infinite

	now := s.clock.Now()
	for s.queue.Len() > 0 && !s.queue[0].at.After(now) {
		t := heap.Pop(&s.queue).(*task)
		t.fn()
	}

	s.draining = false
	if s.flush != nil {
		s.flush()
	}
	s.rearm()
}

// NextFireTime 返回最早任务的触发时间
func (s *Scheduler) NextFireTime() (time.Time, bool) {
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

// Len 返回待执行任务数
func (s *Scheduler) Len() int {
	return s.queue.Len()
}

// Clear 丢弃所有任务
func (s *Scheduler) Clear() {
	s.queue = nil
	s.armed = Infinite
}

func (s *Scheduler) rearm() {
	at, ok := s.NextFireTime()
	if !ok {
		s.armed = Infinite
		return
	}
	s.armed = at
	if s.arm != nil {
		s.arm(at)
	}
}

// ============================================================================
//                              taskQueue
// ============================================================================

type task struct {
	owner uint64
	fn    func()
	at    time.Time
	seq   uint64
}

// taskQueue 按 (at, seq) 排序的最小堆
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
