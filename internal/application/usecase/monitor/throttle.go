package monitor

import (
	"sync"
	"time"
)

// DefaultThrottleWindow bounds how often the ranking is recomputed.
const DefaultThrottleWindow = 200 * time.Millisecond

// afterFunc arms a one-shot timer and returns its stop function.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Throttle 合并高频的 "有新数据" 信号：一个窗口内最多触发一次重算，
// 窗口内的多次 Notify 折叠成一次尾随触发，触发时才读取最新状态。
//
// 状态机只有 Idle / Pending 两态：
//   - Idle 且距上次触发 >= window：Notify 同步触发
//   - Idle 且不足 window：挂一个 window-elapsed 的定时器，进入 Pending
//   - Pending：Notify 直接忽略
type Throttle struct {
	mu       sync.Mutex
	window   time.Duration
	lastFire time.Time
	pending  bool
	stop     func() bool
	closed   bool

	// fn 串行执行，即使同步路径和定时器路径恰好相邻
	runMu sync.Mutex
	fn    func()

	now   func() time.Time
	after afterFunc
}

func NewThrottle(window time.Duration, fn func()) *Throttle {
	return newThrottle(window, fn, time.Now, realAfterFunc)
}

func newThrottle(window time.Duration, fn func(), now func() time.Time, after afterFunc) *Throttle {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &Throttle{
		window: window,
		fn:     fn,
		now:    now,
		after:  after,
	}
}

// Notify 由 feed 消费者在每个 batch 写入后调用一次
func (t *Throttle) Notify() {
	t.mu.Lock()
	if t.closed || t.pending {
		t.mu.Unlock()
		return
	}

	now := t.now()
	elapsed := now.Sub(t.lastFire)
	if t.lastFire.IsZero() || elapsed >= t.window {
		t.lastFire = now
		t.mu.Unlock()
		t.run()
		return
	}

	t.pending = true
	t.stop = t.after(t.window-elapsed, t.fire)
	t.mu.Unlock()
}

func (t *Throttle) fire() {
	t.mu.Lock()
	if !t.pending || t.closed {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.stop = nil
	t.lastFire = t.now()
	t.mu.Unlock()

	t.run()
}

func (t *Throttle) run() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	t.fn()
}

// Pending reports whether a trailing fire is armed.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Close cancels an armed timer; later Notify calls are ignored.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.pending = false
}
