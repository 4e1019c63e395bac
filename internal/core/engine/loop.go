package engine

import (
	"time"
)

// run 事件循环
//
// 入站消息、接口变化、定时器与投递的操作都在这里串行处理。
func (e *Engine) run() {
	defer close(e.done)

	for {
		var timerC <-chan time.Time
		if e.timer != nil {
			timerC = e.timer.C
		}

		select {
		case <-e.closing:
			e.runPosted()
			return

		case <-e.wakeup:
			e.runPosted()

		case m, ok := <-e.inbound:
			if !ok {
				e.inbound = nil
				continue
			}
			e.receiveMessage(m.Msg, m.From)

		case ifs, ok := <-e.changes:
			if !ok {
				e.changes = nil
				continue
			}
			e.updateInterfaces(ifs)
			e.flush()

		case <-timerC:
			// 定时器可能因 Reset 竞争而提前触发，Wake 只执行已到期的任务
			e.sched.Wake()
		}
	}
}

// post 把操作投递到事件循环，不等待执行
func (e *Engine) post(fn func()) {
	e.postMu.Lock()
	e.posted = append(e.posted, fn)
	e.postMu.Unlock()

	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

// exec 把操作投递到事件循环并等待执行完成
//
// 事件循环已退出时返回 ErrEngineClosed。
func (e *Engine) exec(fn func()) error {
	finished := make(chan struct{})
	e.post(func() {
		fn()
		close(finished)
	})

	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

// runPosted 执行所有已投递的操作，然后发送累积的出站消息
func (e *Engine) runPosted() {
	e.postMu.Lock()
	posted := e.posted
	e.posted = nil
	e.postMu.Unlock()

	if len(posted) == 0 {
		return
	}
	for _, fn := range posted {
		fn()
	}
	e.flush()
}

// armTimer 由调度器在最早唤醒时间变化时调用
func (e *Engine) armTimer(at time.Time) {
	d := at.Sub(e.clock.Now())
	if d < 0 {
		d = 0
	}
	if e.timer == nil {
		e.timer = e.clock.Timer(d)
		return
	}
	// 丢弃未读取的过期触发，Reset 后 C 上只会有新的触发
	if !e.timer.Stop() {
		select {
		case <-e.timer.C:
		default:
		}
	}
	e.timer.Reset(d)
}
