package engagement

import "fmt"

// ValidateWalk checks that a full timeline forms a contiguous path through g.
func (g *Graph) ValidateWalk(events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	first := events[0]
	if first.Sequence != 1 || first.Transition != TransitionCreate || first.FromStatus != "" || first.ToStatus != StatusDealPingSent {
		return fmt.Errorf("timeline must start with creation into %s, got seq %d %s %s->%s",
			StatusDealPingSent, first.Sequence, first.Transition, first.FromStatus, first.ToStatus)
	}
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.Sequence != prev.Sequence+1 {
			return fmt.Errorf("sequence gap between %d and %d", prev.Sequence, cur.Sequence)
		}
		if cur.FromStatus != prev.ToStatus {
			return fmt.Errorf("event %d starts at %s but previous ended at %s", cur.Sequence, cur.FromStatus, prev.ToStatus)
		}
		if prev.ToStatus.IsTerminal() {
			return fmt.Errorf("event %d follows terminal status %s", cur.Sequence, prev.ToStatus)
		}
		if !g.HasEdge(cur.FromStatus, cur.Transition, cur.ToStatus) {
			return fmt.Errorf("event %d: %s is not a declared edge from %s to %s", cur.Sequence, cur.Transition, cur.FromStatus, cur.ToStatus)
		}
		if cur.CreatedAt.Before(prev.CreatedAt) {
			return fmt.Errorf("event %d is older than event %d", cur.Sequence, prev.Sequence)
		}
	}
	return nil
}
