package controller

import (
	"sync"

	"github.com/Goofygiraffe06/blaze/internal/logging"
)

// Listeners is a connection's register of one-shot event listeners.
// Each armed event maps to the flow that owns it. Taking an event disarms it,
// so a second frame for the same event is inert until the owner re-arms it.
type Listeners struct {
	mu    sync.Mutex
	owner string
	armed map[string]string
}

// NewListeners creates an empty register for the connection identified by owner.
func NewListeners(owner string) *Listeners {
	return &Listeners{
		owner: owner,
		armed: make(map[string]string),
	}
}

// Arm registers a one-shot listener for event on behalf of flow.
// Re-arming an already armed event replaces its owner.
func (l *Listeners) Arm(event, flow string) {
	if event == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.armed[event] = flow
	logging.DebugLog("Listeners [%s]: armed %s for %s", l.owner, event, flow)
}

// Take disarms event and returns the flow that armed it.
func (l *Listeners) Take(event string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	flow, ok := l.armed[event]
	if !ok {
		logging.DebugLog("Listeners [%s]: %s not armed, frame dropped", l.owner, event)
		return "", false
	}
	delete(l.armed, event)
	return flow, true
}

// Armed reports whether event currently has a listener.
func (l *Listeners) Armed(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.armed[event]
	return ok
}

// DisarmFlow removes every listener owned by flow.
func (l *Listeners) DisarmFlow(flow string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for event, owner := range l.armed {
		if owner == flow {
			delete(l.armed, event)
		}
	}
}

// Count returns the number of armed listeners.
func (l *Listeners) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.armed)
}
