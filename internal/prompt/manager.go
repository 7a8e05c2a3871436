// Package prompt assembles a bounded-token model context from
// prioritized, replaceable fragments.
package prompt

import (
	"sort"
	"strings"
)

// Priority bands, lower renders earlier.
const (
	PriorityPersona     = 0
	PriorityUserRequest = 10
	PriorityAttachment  = 20
	PriorityHistory     = 30
	PriorityEnvironment = 40
)

// tokenDivisor approximates tokens as characters divided by four.
const tokenDivisor = 4

// Fragment is one named, priced, priority-tagged chunk of prompt content.
type Fragment struct {
	Key       string
	Content   string
	Tokens    int
	Priority  int
	Essential bool
}

// Manager holds the fragments for one interaction's context.
// It is not safe for concurrent use; each interaction builds its own.
type Manager struct {
	fragments map[string]*Fragment
	order     []string // insertion order, for stable iteration
}

// NewManager creates an empty context manager.
func NewManager() *Manager {
	return &Manager{fragments: make(map[string]*Fragment)}
}

// EstimateTokens prices content at insertion time. The estimate is
// computed once and never re-measured.
func EstimateTokens(content string) int {
	return len(content) / tokenDivisor
}

// AddFragment upserts a fragment under key. Re-adding a key replaces
// its content in place; the fragment count does not grow.
func (m *Manager) AddFragment(key, content string, priority int, essential bool) {
	if _, exists := m.fragments[key]; !exists {
		m.order = append(m.order, key)
	}
	m.fragments[key] = &Fragment{
		Key:       key,
		Content:   content,
		Tokens:    EstimateTokens(content),
		Priority:  priority,
		Essential: essential,
	}
}

// Remove deletes a fragment by key.
func (m *Manager) Remove(key string) {
	if _, exists := m.fragments[key]; !exists {
		return
	}
	delete(m.fragments, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of fragments currently held.
func (m *Manager) Len() int {
	return len(m.fragments)
}

// TotalTokens sums the token estimates of all fragments.
func (m *Manager) TotalTokens() int {
	total := 0
	for _, f := range m.fragments {
		total += f.Tokens
	}
	return total
}

// SortByPosition returns fragments ordered by ascending priority,
// ties broken by key.
func (m *Manager) SortByPosition() []*Fragment {
	out := make([]*Fragment, 0, len(m.fragments))
	for _, key := range m.order {
		out = append(out, m.fragments[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// OptimizeForLimit evicts non-essential fragments until the total token
// estimate fits the budget. Eviction removes the fragment in the lowest
// rendering priority band first (the least important content). Essential
// fragments are never considered; if essential content alone exceeds the
// budget, the overshoot stands.
func (m *Manager) OptimizeForLimit(budget int) {
	for m.TotalTokens() > budget {
		victim := m.lowestNonEssential()
		if victim == nil {
			return
		}
		m.Remove(victim.Key)
	}
}

// lowestNonEssential finds the evictable fragment with the highest
// priority number, ties broken by key so eviction is deterministic.
func (m *Manager) lowestNonEssential() *Fragment {
	var victim *Fragment
	for _, key := range m.order {
		f := m.fragments[key]
		if f.Essential {
			continue
		}
		if victim == nil ||
			f.Priority > victim.Priority ||
			(f.Priority == victim.Priority && f.Key > victim.Key) {
			victim = f
		}
	}
	return victim
}

// Render concatenates surviving fragments in sorted order, separated by
// a blank line.
func (m *Manager) Render() string {
	sorted := m.SortByPosition()
	parts := make([]string, 0, len(sorted))
	for _, f := range sorted {
		parts = append(parts, f.Content)
	}
	return strings.Join(parts, "\n\n")
}
