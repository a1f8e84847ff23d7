package swim

import (
	"fmt"
	"time"

	"github.com/tutu-network/swimshell/internal/swimshell"
)

// memberState is the engine's private record for one known node.
type memberState struct {
	node      swimshell.Node
	status    swimshell.MemberStatus
	startedAt time.Time
}

func addressKey(n swimshell.Node) string {
	return fmt.Sprintf("%s:%d", n.Address, n.Port)
}

func (e *Engine) snapshot(m *memberState) swimshell.Member {
	return swimshell.Member{Node: m.node, Status: m.status, StartedAt: m.startedAt}
}

// applyStatus is the single incarnation-gated state-transition rule
// used by every path that can change a member's status: Mark, gossip
// payload processing, and ping/ping-request response handling. Caller
// must hold e.mu.
//
// A brand-new node can only be introduced as alive; gossip about an
// unknown suspect or dead node is dropped rather than fabricating a
// member we never directly or indirectly confirmed. An update whose
// incarnation trails what we already have is stale and ignored. An
// update at the same status and incarnation we already hold is a
// corroboration: for a suspect, its corroborating node is merged into
// SuspectedBy without resetting the suspicion clock, consistent with
// the timeout shrinking as more peers corroborate rather than
// restarting.
func (e *Engine) applyStatus(node swimshell.Node, status swimshell.MemberStatus, now time.Time) *swimshell.MemberStatusChange {
	key := addressKey(node)
	m, ok := e.members[key]
	if !ok {
		if status.Kind != swimshell.StatusAlive {
			return nil
		}
		m = &memberState{node: node, status: status, startedAt: now}
		e.members[key] = m
		return &swimshell.MemberStatusChange{Member: e.snapshot(m)}
	}

	if status.HasIncarnation && m.status.HasIncarnation && status.Incarnation < m.status.Incarnation {
		return nil
	}

	if status.Kind == m.status.Kind && status.HasIncarnation == m.status.HasIncarnation &&
		(!status.HasIncarnation || status.Incarnation == m.status.Incarnation) {
		if status.Kind == swimshell.StatusSuspect {
			if m.status.SuspectedBy == nil {
				m.status.SuspectedBy = make(map[string]struct{})
			}
			for who := range status.SuspectedBy {
				m.status.SuspectedBy[who] = struct{}{}
			}
		}
		return nil
	}

	prev := m.status
	m.status = status
	m.node = node
	m.startedAt = now
	return &swimshell.MemberStatusChange{PreviousStatus: &prev, Member: e.snapshot(m)}
}
