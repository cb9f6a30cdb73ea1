package supervisor

import "sync/atomic"

const (
	flagIdle int32 = iota
	flagRunning
	flagStopped
)

// RunningFlag is the shared cancellation signal between the supervising
// goroutine and a shutdown collaborator such as a signal handler.
//
// A stop requested before the loop starts is remembered, so an interrupt
// that arrives during startup is never lost.
type RunningFlag struct {
	state atomic.Int32
	wake  chan struct{}
}

func newRunningFlag() *RunningFlag {
	return &RunningFlag{wake: make(chan struct{}, 1)}
}

// start moves idle to running. It fails if a stop was already requested.
func (f *RunningFlag) start() bool {
	return f.state.CompareAndSwap(flagIdle, flagRunning)
}

// Running reports whether the loop should continue.
func (f *RunningFlag) Running() bool {
	return f.state.Load() == flagRunning
}

// Stop clears the flag and wakes the supervising goroutine. It returns true
// only for the call that performed the transition. Safe to call from any
// goroutine, any number of times.
func (f *RunningFlag) Stop() bool {
	for {
		cur := f.state.Load()
		if cur == flagStopped {
			return false
		}
		if f.state.CompareAndSwap(cur, flagStopped) {
			break
		}
	}

	select {
	case f.wake <- struct{}{}:
	default:
	}
	return true
}

// Wake is signalled by Stop.
func (f *RunningFlag) Wake() <-chan struct{} {
	return f.wake
}
