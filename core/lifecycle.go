// core/lifecycle.go
package core

import "sync"

// State 输出设备的生命周期状态
type State string

const (
	StateIdle     State = "idle"     // 尚未Start
	StateRunning  State = "running"  // 接收输入, 发送循环运行中
	StateDraining State = "draining" // MarkClosed之后, 只发送队列里剩余的帧
	StateStopped  State = "stopped"  // 终止状态, 不可恢复
)

// Accepting 该状态下是否接收新的输入
func (s State) Accepting() bool { return s == StateRunning }

// lifecycle 用互斥锁保证状态转换的原子性
type lifecycle struct {
	mu    sync.Mutex
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateIdle}
}

func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// transition 在锁内根据当前状态决定下一个状态, 状态改变时在锁内执行hook
func (l *lifecycle) transition(next func(from State) (State, bool), hook func(from, to State)) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.state
	to, ok := next(from)
	if !ok || to == from {
		return from, false
	}
	l.state = to
	if hook != nil {
		hook(from, to)
	}
	return from, true
}

func startTransition(from State) (State, bool) {
	return StateRunning, from == StateIdle
}

func closeTransition(from State) (State, bool) {
	switch from {
	case StateIdle:
		return StateStopped, true
	case StateRunning:
		return StateDraining, true
	default:
		return from, false
	}
}

func stopTransition(from State) (State, bool) {
	return StateStopped, from != StateStopped
}
