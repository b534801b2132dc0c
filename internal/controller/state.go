package controller

import "sync/atomic"

// atomicState mirrors the coordinator-owned state for cheap reads from
// other goroutines (UI pollers, the trigger surface).
type atomicState struct {
	state  atomic.Int32
	autoOn atomic.Bool
}

func (a *atomicState) set(s State) { a.state.Store(int32(s)) }

func (a *atomicState) get() State { return State(a.state.Load()) }

func (a *atomicState) setAuto(on bool) { a.autoOn.Store(on) }

func (a *atomicState) auto() bool { return a.autoOn.Load() }
