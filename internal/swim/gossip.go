package swim

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/tutu-network/swimshell/internal/swimshell"
)

// broadcastEntry is one pending piggyback item, retransmitted a
// bounded number of times so a status change reaches the cluster in
// O(log N) rounds without lingering forever.
type broadcastEntry struct {
	node      swimshell.Node
	status    swimshell.MemberStatus
	remaining int
}

// wireUpdate is the JSON-encoded shape of one piggybacked status
// change. It lives entirely inside the engine: the shell treats the
// gossip payload as an opaque byte slice, so this format never needs
// to match whatever internal/wire uses for the outer envelope.
type wireUpdate struct {
	Address        string `json:"address"`
	Port           uint16 `json:"port"`
	UID            string `json:"uid"`
	Kind           int    `json:"kind"`
	Incarnation    uint64 `json:"incarnation"`
	HasIncarnation bool   `json:"has_incarnation"`
}

// queueBroadcast schedules node's new status for piggybacking on the
// next Lambda*logN outbound messages. Caller must hold e.mu.
func (e *Engine) queueBroadcast(node swimshell.Node, status swimshell.MemberStatus) {
	e.broadcast = append(e.broadcast, &broadcastEntry{
		node:      node,
		status:    status,
		remaining: e.config.Lambda * e.logN(),
	})
}

// logN returns ceil(log2(N+1)), the dissemination factor used to
// bound piggyback retransmission.
func (e *Engine) logN() int {
	n := len(e.members) + 1
	l := 1
	for 1<<uint(l) < n {
		l++
	}
	return l
}

// drainBroadcastLocked returns the JSON-encoded pending broadcast
// entries and decrements their remaining retransmission count. Caller
// must hold e.mu.
func (e *Engine) drainBroadcastLocked() []byte {
	if len(e.broadcast) == 0 {
		return nil
	}
	out := make([]wireUpdate, 0, len(e.broadcast))
	remaining := e.broadcast[:0]
	for _, b := range e.broadcast {
		out = append(out, wireUpdate{
			Address:        b.node.Address,
			Port:           b.node.Port,
			UID:            b.node.UID,
			Kind:           int(b.status.Kind),
			Incarnation:    b.status.Incarnation,
			HasIncarnation: b.status.HasIncarnation,
		})
		b.remaining--
		if b.remaining > 0 {
			remaining = append(remaining, b)
		}
	}
	e.broadcast = remaining
	data, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return data
}

// applyPayload decodes and applies every piggybacked status update in
// payload, returning one gossip outcome per entry (ignored or
// applied). Caller must hold e.mu. Updates about ourselves are
// dropped: we are the sole authority on our own status.
func (e *Engine) applyPayload(payload []byte, now time.Time) []swimshell.GossipOutcome {
	if len(payload) == 0 {
		return nil
	}
	var updates []wireUpdate
	if err := json.Unmarshal(payload, &updates); err != nil {
		return []swimshell.GossipOutcome{{Kind: swimshell.GossipIgnored, Level: "debug", Message: "malformed gossip payload: " + err.Error()}}
	}

	outcomes := make([]swimshell.GossipOutcome, 0, len(updates))
	for _, u := range updates {
		node := swimshell.Node{Address: u.Address, Port: u.Port, UID: u.UID}
		if node.EqualAddress(e.self) {
			continue
		}
		status := swimshell.MemberStatus{
			Kind:           swimshell.StatusKind(u.Kind),
			Incarnation:    u.Incarnation,
			HasIncarnation: u.HasIncarnation,
		}
		change := e.applyStatus(node, status, now)
		if change == nil {
			outcomes = append(outcomes, swimshell.GossipOutcome{Kind: swimshell.GossipIgnored, Level: "trace", Message: "stale or redundant gossip update"})
			continue
		}
		if change.Member.Status.Kind == swimshell.StatusSuspect || change.Member.Status.Kind == swimshell.StatusDead {
			e.queueBroadcast(node, change.Member.Status)
		}
		outcomes = append(outcomes, swimshell.GossipOutcome{Kind: swimshell.GossipApplied, Change: change})
	}
	return outcomes
}

// selectRelaysLocked picks up to k reachable members, excluding
// exclude and ourselves, to serve as indirect-probe relays. Caller
// must hold e.mu.
func (e *Engine) selectRelaysLocked(exclude swimshell.Node, k int) []*memberState {
	excludeKey := addressKey(exclude)
	selfKey := addressKey(e.self)
	candidates := make([]*memberState, 0, len(e.members))
	for key, m := range e.members {
		if key == excludeKey || key == selfKey {
			continue
		}
		if m.status.Kind == swimshell.StatusAlive || m.status.Kind == swimshell.StatusSuspect {
			candidates = append(candidates, m)
		}
	}
	e.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}
