// Package netstate tracks whether the reader believes it can reach the network.
// The flag has a single writer, the Monitor, fed by connectivity events.
package netstate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/internal/metrics"
)

// Event reports a connectivity change.
type Event struct {
	Online bool
	At     time.Time
}

// State is the online/offline flag read by the orchestrator.
type State struct {
	online atomic.Bool
}

// NewState returns a State with the given initial value.
func NewState(online bool) *State {
	s := &State{}
	s.set(online)
	return s
}

// Online reports the current state. A nil State is always online.
func (s *State) Online() bool {
	if s == nil {
		return true
	}
	return s.online.Load()
}

func (s *State) set(online bool) (changed bool) {
	prev := s.online.Swap(online)
	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
	return prev != online
}

// Monitor applies connectivity events to a State.
type Monitor struct {
	state *State
	log   logger.Logger
}

// NewMonitor creates the sole writer for state.
func NewMonitor(state *State, log logger.Logger) *Monitor {
	return &Monitor{state: state, log: logger.Ensure(log)}
}

// State returns the monitored flag.
func (m *Monitor) State() *State { return m.state }

// Subscribe consumes events until ctx is done or the channel is closed.
func (m *Monitor) Subscribe(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Apply(ev)
		}
	}
}

// Apply records a single connectivity event.
func (m *Monitor) Apply(ev Event) {
	if !m.state.set(ev.Online) {
		return
	}
	status := "offline"
	if ev.Online {
		status = "online"
	}
	m.log.InfoObj("network state changed", "network", map[string]any{
		"status": status,
		"at":     ev.At,
	})
}
