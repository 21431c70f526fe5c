package hw

import (
	"runtime"
	"runtime/debug"
)

// RealTime brackets the capture loop. Exit must be called on every path out
// of the section, from the goroutine that called Enter.
type RealTime interface {
	Enter()
	Exit()
}

// HostRealTime pins the capture goroutine to its OS thread and turns the
// garbage collector off while the section is active.
type HostRealTime struct {
	active    bool
	gcPercent int
}

func (h *HostRealTime) Enter() {
	if h.active {
		return
	}
	runtime.LockOSThread()
	h.gcPercent = debug.SetGCPercent(-1)
	h.active = true
}

func (h *HostRealTime) Exit() {
	if !h.active {
		return
	}
	debug.SetGCPercent(h.gcPercent)
	runtime.UnlockOSThread()
	h.active = false
}

// Active reports whether the section is entered.
func (h *HostRealTime) Active() bool {
	return h.active
}
