// Package tracker records when consolidation last ran for each agent. The
// marker is monotonic non-decreasing: marking with an earlier timestamp than
// the stored one is a no-op.
package tracker

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local tracker for single-process deployments and tests.
type Memory struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemory creates an in-process tracker.
func NewMemory() *Memory {
	return &Memory{last: make(map[string]time.Time)}
}

// Last returns the last consolidation time for the agent, zero if never.
func (m *Memory) Last(_ context.Context, agentID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[agentID], nil
}

// Mark records a consolidation at the given time, keeping the marker
// monotonic.
func (m *Memory) Mark(_ context.Context, agentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.After(m.last[agentID]) {
		m.last[agentID] = at
	}
	return nil
}
