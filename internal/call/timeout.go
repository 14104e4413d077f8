package call

import (
	"sync"
	"time"
)

// TimeoutManager owns the per-call ringing timers for this process.
//
// Timers are process-local: the process that created a call owns its timer.
// If that process dies the call key's TTL in the shared store still expires
// it, so no call rings forever.
//
// Clearing a timer races with it firing; both paths are safe because the
// fire handler goes through the store's guarded transition and treats a
// lost race as a no-op.
type TimeoutManager struct {
	mu     sync.Mutex
	timers map[string]*time.Timer

	ringing time.Duration
	fire    func(callID string)
}

// NewTimeoutManager creates a manager whose timers call fire(callID) once
// the ringing window elapses. fire runs on the timer goroutine.
func NewTimeoutManager(ringing time.Duration, fire func(callID string)) *TimeoutManager {
	return &TimeoutManager{
		timers:  make(map[string]*time.Timer),
		ringing: ringing,
		fire:    fire,
	}
}

// Start schedules the single-shot ringing timer for callID. Starting an
// already-tracked call resets its timer.
func (m *TimeoutManager) Start(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[callID]; ok {
		t.Stop()
	}
	m.timers[callID] = time.AfterFunc(m.ringing, func() {
		m.mu.Lock()
		delete(m.timers, callID)
		m.mu.Unlock()
		m.fire(callID)
	})
}

// Clear cancels the pending timer for callID. Safe no-op when none exists.
func (m *TimeoutManager) Clear(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[callID]; ok {
		t.Stop()
		delete(m.timers, callID)
	}
}

// Stop cancels every pending timer. Used at shutdown.
func (m *TimeoutManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// Pending reports how many timers are currently tracked.
func (m *TimeoutManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
