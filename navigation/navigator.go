// Package navigation adapts the session manager's transition requests to a router.
package navigation

import (
	"context"
	"sync"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/log"
)

// Transition is one requested screen change.
type Transition struct {
	Target string
	Mode   domain.NavigationMode
}

// Func adapts a plain function to domain.Navigator.
type Func func(target string, mode domain.NavigationMode)

func (f Func) RequestTransition(target string, mode domain.NavigationMode) {
	f(target, mode)
}

// Recorder keeps every transition it receives, in order.
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *Recorder) RequestTransition(target string, mode domain.NavigationMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, Transition{Target: target, Mode: mode})
}

// Transitions returns a copy of the recorded transitions.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

// Logging logs each transition and forwards it to Next when set.
type Logging struct {
	Logger log.Logger
	Next   domain.Navigator
}

func (l Logging) RequestTransition(target string, mode domain.NavigationMode) {
	l.Logger.Info(context.Background(), "navigation requested", log.Fields{"target": target, "mode": string(mode)})
	if l.Next != nil {
		l.Next.RequestTransition(target, mode)
	}
}

var (
	_ domain.Navigator = Func(nil)
	_ domain.Navigator = (*Recorder)(nil)
	_ domain.Navigator = Logging{}
)
