package agent

import (
	"container/heap"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdnsd/internal/core/scheduler"
	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.agent")

const (
	// 首次续期查询在 TTL 的 80% 处，之后每隔 5% 一次，共 4 次
	firstQueryPerThousand    = 800
	queryIntervalPerThousand = 50
	queriesToAttempt         = 4
)

// Renewer 资源记录续期
//
// 对 Renew 过的记录在 TTL 的 80%/85%/90%/95% 处重新查询，
// TTL 耗尽仍未续期时通过 SectionExpired 广播过期，然后停止跟踪。
type Renewer struct {
	Base

	entries  map[types.RecordKey]*renewEntry
	schedule renewQueue

	// wakeAt 已提交的唤醒任务时间，过时的任务被忽略
	wakeAt time.Time
}

// renewEntry 续期条目
//
// time 是下一次动作的时间，scheduleTime 决定条目在堆中的位置。
// time 推后时不调整堆，出堆时再按 time 重新入堆。
type renewEntry struct {
	key              types.RecordKey
	time             time.Time
	scheduleTime     time.Time
	interval         time.Duration
	queriesRemaining int
	deletePending    bool
	index            int
}

// NewRenewer 创建续期 agent
func NewRenewer(host Host) *Renewer {
	return &Renewer{
		Base:    NewBase(host),
		entries: make(map[types.RecordKey]*renewEntry),
		wakeAt:  scheduler.Infinite,
	}
}

// Renew 开始或重新开始跟踪记录
func (r *Renewer) Renew(rr dns.RR) {
	ttl := rr.Header().Ttl
	if ttl == 0 {
		return
	}

	key := types.KeyOf(rr)
	entry, ok := r.entries[key]
	if !ok {
		entry = &renewEntry{key: key, index: -1}
		r.entries[key] = entry
	}
	entry.deletePending = false
	r.restart(entry, ttl)
}

// ReceiveResource 观察到被跟踪记录时按新 TTL 重新开始；TTL 为 0 时停止跟踪
func (r *Renewer) ReceiveResource(rr dns.RR, section types.Section) {
	if section == types.SectionExpired {
		return
	}
	entry, ok := r.entries[types.KeyOf(rr)]
	if !ok {
		return
	}
	if types.IsGoodbye(rr) {
		// 出堆时丢弃，不广播过期
		entry.deletePending = true
		return
	}
	entry.deletePending = false
	r.restart(entry, rr.Header().Ttl)
}

// Quit 清空跟踪并移除自己
func (r *Renewer) Quit() {
	r.entries = make(map[types.RecordKey]*renewEntry)
	r.schedule = nil
	r.RemoveSelf("")
}

// Tracked 返回正在跟踪的条目数
func (r *Renewer) Tracked() int {
	return len(r.entries)
}

func (r *Renewer) restart(entry *renewEntry, ttl uint32) {
	window := time.Duration(ttl) * time.Second
	entry.time = r.Now().Add(window * firstQueryPerThousand / 1000)
	entry.interval = window * queryIntervalPerThousand / 1000
	entry.queriesRemaining = queriesToAttempt
	r.reschedule(entry)
}

func (r *Renewer) reschedule(entry *renewEntry) {
	switch {
	case entry.index < 0:
		entry.scheduleTime = entry.time
		heap.Push(&r.schedule, entry)
	case entry.time.Before(entry.scheduleTime):
		entry.scheduleTime = entry.time
		heap.Fix(&r.schedule, entry.index)
	}
	r.postWake()
}

func (r *Renewer) postWake() {
	if r.schedule.Len() == 0 {
		return
	}
	at := r.schedule[0].scheduleTime
	if !at.Before(r.wakeAt) {
		return
	}
	r.wakeAt = at
	r.PostTaskForTime(func() {
		if r.wakeAt.Equal(at) {
			r.wakeAt = scheduler.Infinite
			r.sendRenewals()
		}
	}, at)
}

func (r *Renewer) sendRenewals() {
	now := r.Now()
	for r.schedule.Len() > 0 && !r.schedule[0].scheduleTime.After(now) {
		entry := heap.Pop(&r.schedule).(*renewEntry)

		switch {
		case entry.deletePending:
			delete(r.entries, entry.key)

		case entry.time.After(now):
			// 被推后，按新时间重新入堆
			entry.scheduleTime = entry.time
			heap.Push(&r.schedule, entry)

		case entry.queriesRemaining == 0:
			delete(r.entries, entry.key)
			log.Debug("记录过期", "key", entry.key)
			r.host.SendResource(types.NewExpired(entry.key.Name, entry.key.Type), types.SectionExpired, types.MulticastAll())

		default:
			r.host.SendQuestion(types.NewQuestion(entry.key.Name, entry.key.Type, false), types.MulticastAll())
			entry.time = entry.time.Add(entry.interval)
			entry.queriesRemaining--
			entry.scheduleTime = entry.time
			heap.Push(&r.schedule, entry)
		}
	}
	r.postWake()
}

// ============================================================================
//                              renewQueue
// ============================================================================

type renewQueue []*renewEntry

func (q renewQueue) Len() int { return len(q) }

func (q renewQueue) Less(i, j int) bool { return q[i].scheduleTime.Before(q[j].scheduleTime) }

func (q renewQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *renewQueue) Push(x any) {
	entry := x.(*renewEntry)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *renewQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[:n-1]
	return entry
}
