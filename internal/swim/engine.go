package swim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/tutu-network/swimshell/internal/swimshell"
)

// Engine is the concrete swimshell.Engine: the protocol-logic SWIM
// instance. It holds the membership table and the piggyback queue and
// decides directives; it never touches the network or a timer
// directly.
type Engine struct {
	mu sync.Mutex

	self            swimshell.Node
	selfIncarnation uint64
	config          Config

	members   map[string]*memberState
	seq       uint64
	broadcast []*broadcastEntry

	// lhm is the local-health multiplier: a count of recent probe
	// failures/timeouts that dilates our own protocol period and ping
	// timeout, the same self-throttling the teacher's health score
	// implements to avoid false suspicions under local overload.
	lhm    int
	lhmCap int

	rng *rand.Rand
}

// NewEngine builds an Engine seeded with self as the sole alive member.
func NewEngine(self swimshell.Node, cfg Config) *Engine {
	e := &Engine{
		self:            self,
		selfIncarnation: 0,
		config:          cfg,
		members:         make(map[string]*memberState),
		lhmCap:          8,
		rng:             newRand(),
	}
	key := addressKey(self)
	e.members[key] = &memberState{node: self, status: swimshell.Alive(0), startedAt: time.Time{}}
	return e
}

func (e *Engine) adjustLHM(delta int) {
	e.lhm += delta
	if e.lhm < 0 {
		e.lhm = 0
	}
	if e.lhm > e.lhmCap {
		e.lhm = e.lhmCap
	}
}

// OnPing handles a directly-received ping: apply its piggybacked
// gossip, introduce the sender as alive if unknown, and ack with our
// own piggyback payload.
func (e *Engine) OnPing(origin swimshell.Node, payload []byte, seq uint64) []swimshell.PingDirective {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	var directives []swimshell.PingDirective
	for _, o := range e.applyPayload(payload, now) {
		directives = append(directives, swimshell.PingDirective{Kind: swimshell.PingDirectiveGossipProcessed, Gossip: o})
	}

	if _, ok := e.members[addressKey(origin)]; !ok {
		if change := e.applyStatus(origin, swimshell.Alive(0), now); change != nil {
			directives = append(directives, swimshell.PingDirective{
				Kind:   swimshell.PingDirectiveGossipProcessed,
				Gossip: swimshell.GossipOutcome{Kind: swimshell.GossipApplied, Change: change},
			})
		}
	}

	directives = append(directives, swimshell.PingDirective{
		Kind: swimshell.PingDirectiveSendAck,
		SendAck: &swimshell.AckInstruction{
			ReplyTo:     origin,
			Incarnation: e.selfIncarnation,
			Payload:     e.drainBroadcastLocked(),
			ID:          seq,
		},
	})
	return directives
}

// OnPingRequest handles an inbound request to probe target on replyTo's
// behalf. If target is unknown we can't serve the request.
func (e *Engine) OnPingRequest(target, replyTo swimshell.Node, payload []byte) []swimshell.PingRequestDirective {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	var directives []swimshell.PingRequestDirective
	for _, o := range e.applyPayload(payload, now) {
		directives = append(directives, swimshell.PingRequestDirective{Kind: swimshell.PingRequestDirectiveGossipProcessed, Gossip: o})
	}

	if _, ok := e.members[addressKey(target)]; !ok {
		directives = append(directives, swimshell.PingRequestDirective{Kind: swimshell.PingRequestDirectiveIgnore})
		return directives
	}

	e.seq++
	directives = append(directives, swimshell.PingRequestDirective{
		Kind: swimshell.PingRequestDirectiveSendPing,
		SendPing: &swimshell.DirectPingInstruction{
			Target:  target,
			Origin:  &replyTo,
			Timeout: e.dynamicPingTimeoutLocked(),
			Seq:     e.seq,
		},
	})
	return directives
}

// OnPingResponse handles the completion of a direct probe. When
// resp.Origin is set this probe was relaying an indirect ping-request:
// the only decision left is ack or nack back to the origin. Otherwise
// this was our own probe cycle's direct ping, and a non-ack triggers
// the indirect fan-out.
func (e *Engine) OnPingResponse(resp swimshell.Response) []swimshell.PingResponseDirective {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	var directives []swimshell.PingResponseDirective
	for _, o := range e.applyPayload(resp.Payload, now) {
		directives = append(directives, swimshell.PingResponseDirective{Kind: swimshell.PingResponseDirectiveGossipProcessed, Gossip: o})
	}

	if resp.Origin != nil {
		if resp.Kind == swimshell.ResponseAck {
			directives = append(directives, swimshell.PingResponseDirective{
				Kind: swimshell.PingResponseDirectiveSendAck,
				SendAck: &swimshell.AckInstruction{
					ReplyTo:     *resp.Origin,
					Incarnation: resp.Incarnation,
					Payload:     e.drainBroadcastLocked(),
					ID:          resp.Seq,
				},
			})
		} else {
			directives = append(directives, swimshell.PingResponseDirective{
				Kind: swimshell.PingResponseDirectiveSendNack,
				SendNack: &swimshell.NackInstruction{
					ReplyTo: *resp.Origin,
					Target:  resp.Target,
					ID:      resp.Seq,
				},
			})
		}
		return directives
	}

	if resp.Kind == swimshell.ResponseAck {
		e.adjustLHM(-1)
		e.applyStatus(resp.Target, swimshell.Alive(resp.Incarnation), now)
		return directives
	}

	e.adjustLHM(1)
	relays := e.selectRelaysLocked(resp.Target, e.config.IndirectFanout)
	probes := make([]swimshell.RelayProbe, 0, len(relays))
	for _, r := range relays {
		e.seq++
		probes = append(probes, swimshell.RelayProbe{Relay: r.node, Payload: e.drainBroadcastLocked(), Seq: e.seq})
	}
	directives = append(directives, swimshell.PingResponseDirective{
		Kind: swimshell.PingResponseDirectiveSendPingRequests,
		SendPingRequests: &swimshell.PingRequestsInstruction{
			Target:  resp.Target,
			Timeout: e.dynamicPingTimeoutLocked(),
			Relays:  probes,
		},
	})
	return directives
}

// OnEveryPingRequestResponse is called for every relay completion,
// win or not, regardless of whether it resolves the ping-request's
// first-success promise. Only an ack changes local-health bookkeeping
// (it shrinks the LHM); a nack or timeout leaves it unchanged.
func (e *Engine) OnEveryPingRequestResponse(resp swimshell.Response, pinged swimshell.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if resp.Kind == swimshell.ResponseAck {
		e.adjustLHM(-1)
	}
}

// OnPingRequestResponse resolves the indirect probe's outcome: alive
// on ack, nack_received (no membership change) on nack, newly-suspect
// on timeout.
func (e *Engine) OnPingRequestResponse(resp swimshell.Response, pinged swimshell.Node) []swimshell.PingRequestResponseDirective {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	var directives []swimshell.PingRequestResponseDirective
	for _, o := range e.applyPayload(resp.Payload, now) {
		directives = append(directives, swimshell.PingRequestResponseDirective{Kind: swimshell.PingRequestResponseDirectiveGossipProcessed, Gossip: o})
	}

	if resp.Kind == swimshell.ResponseAck {
		var prev *swimshell.MemberStatus
		if m, ok := e.members[addressKey(pinged)]; ok {
			p := m.status
			prev = &p
		}
		change := e.applyStatus(pinged, swimshell.Alive(resp.Incarnation), now)
		member := e.snapshot(e.members[addressKey(pinged)])
		_ = change
		directives = append(directives, swimshell.PingRequestResponseDirective{
			Kind:          swimshell.PingRequestResponseDirectiveAlive,
			AlivePrevious: prev,
			AliveMember:   &member,
		})
		return directives
	}

	if resp.Kind == swimshell.ResponseNack {
		directives = append(directives, swimshell.PingRequestResponseDirective{Kind: swimshell.PingRequestResponseDirectiveNackReceived})
		return directives
	}

	var prev *swimshell.MemberStatus
	if m, ok := e.members[addressKey(pinged)]; ok {
		p := m.status
		prev = &p
	}
	incarnation := uint64(0)
	if prev != nil {
		incarnation = prev.Incarnation
	}
	change := e.applyStatus(pinged, swimshell.Suspect(incarnation, map[string]struct{}{addressKey(e.self): {}}), now)
	_ = change
	m, ok := e.members[addressKey(pinged)]
	if !ok {
		directives = append(directives, swimshell.PingRequestResponseDirective{Kind: swimshell.PingRequestResponseDirectiveGossipProcessed, Gossip: swimshell.GossipOutcome{Kind: swimshell.GossipIgnored, Level: "debug", Message: "suspicion raised on unknown peer"}})
		return directives
	}
	member := e.snapshot(m)
	directives = append(directives, swimshell.PingRequestResponseDirective{
		Kind:            swimshell.PingRequestResponseDirectiveNewlySuspect,
		SuspectPrevious: prev,
		Suspect:         &member,
	})
	return directives
}

// OnPeriodicPingTick picks a random reachable non-self member to probe
// this protocol period, round-robin-by-chance in the teacher's style.
func (e *Engine) OnPeriodicPingTick() swimshell.TickDirective {
	e.mu.Lock()
	defer e.mu.Unlock()

	selfKey := addressKey(e.self)
	candidates := make([]*memberState, 0, len(e.members))
	for key, m := range e.members {
		if key == selfKey {
			continue
		}
		if m.status.Kind == swimshell.StatusAlive || m.status.Kind == swimshell.StatusSuspect {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return swimshell.TickDirective{Kind: swimshell.TickDirectiveIgnore}
	}
	target := candidates[e.rng.Intn(len(candidates))]
	e.seq++
	return swimshell.TickDirective{
		Kind: swimshell.TickDirectiveSendPing,
		SendPing: &swimshell.DirectPingInstruction{
			Target:  target.node,
			Timeout: e.dynamicPingTimeoutLocked(),
			Seq:     e.seq,
		},
	}
}

// Mark applies an externally-requested status transition (used by the
// suspicion-timeout scan to escalate suspect -> unreachable).
func (e *Engine) Mark(peer swimshell.Node, status swimshell.MemberStatus) swimshell.MarkResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.members[addressKey(peer)]
	var previous swimshell.MemberStatus
	if ok {
		previous = m.status
	}
	change := e.applyStatus(peer, status, time.Now())
	if change == nil {
		return swimshell.MarkResult{Applied: false, Previous: previous, New: previous}
	}
	if status.Kind == swimshell.StatusUnreachable {
		e.queueBroadcast(peer, status)
	}
	return swimshell.MarkResult{Applied: true, Previous: previous, New: change.Member.Status}
}

// ConfirmDead transitions peer straight to dead, used when extension
// unreachability is disabled and suspicion expires directly into reap.
func (e *Engine) ConfirmDead(peer swimshell.Node) swimshell.ConfirmDeadResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	change := e.applyStatus(peer, swimshell.DeadStatus(), time.Now())
	if change == nil {
		return swimshell.ConfirmDeadResult{Applied: false}
	}
	e.queueBroadcast(peer, swimshell.DeadStatus())
	delete(e.members, addressKey(peer))
	return swimshell.ConfirmDeadResult{Applied: true, Change: *change}
}

// MakeGossipPayload returns the current piggyback batch. target is
// accepted for symmetry with the teacher's per-destination payload
// shaping but every destination currently receives the same drained
// batch.
func (e *Engine) MakeGossipPayload(target swimshell.Node) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drainBroadcastLocked()
}

func (e *Engine) NextSequenceNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *Engine) Suspects() []swimshell.Member {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []swimshell.Member
	for _, m := range e.members {
		if m.status.Kind == swimshell.StatusSuspect {
			out = append(out, e.snapshot(m))
		}
	}
	return out
}

func (e *Engine) AllMembers() []swimshell.Member {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]swimshell.Member, 0, len(e.members))
	for _, m := range e.members {
		out = append(out, e.snapshot(m))
	}
	return out
}

func (e *Engine) OtherMemberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.members)
	if _, ok := e.members[addressKey(e.self)]; ok {
		n--
	}
	return n
}

func (e *Engine) ProtocolPeriod() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dynamicProtocolIntervalLocked()
}

func (e *Engine) MemberFor(node swimshell.Node) (swimshell.Member, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.members[addressKey(node)]
	if !ok {
		return swimshell.Member{}, false
	}
	return e.snapshot(m), true
}

func (e *Engine) IsMember(peer swimshell.Node, ignoreUID bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.members[addressKey(peer)]
	if !ok {
		return false
	}
	if ignoreUID {
		return true
	}
	return m.node.UID == peer.UID
}

// SuspicionTimeout shrinks the base suspicion TTL as more distinct
// peers corroborate the suspicion, bounded below by SuspicionFloor,
// mirroring the teacher's min-timeout-via-corroboration-count scheme.
func (e *Engine) SuspicionTimeout(suspectedBy int) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	ttl := e.config.SuspicionTTL
	if suspectedBy > 1 {
		shrink := time.Duration(suspectedBy-1) * (e.config.SuspicionTTL / 4)
		ttl -= shrink
	}
	if ttl < e.config.SuspicionFloor {
		ttl = e.config.SuspicionFloor
	}
	return ttl
}

func (e *Engine) DynamicLHMProtocolInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dynamicProtocolIntervalLocked()
}

func (e *Engine) DynamicLHMPingTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dynamicPingTimeoutLocked()
}

func (e *Engine) dynamicProtocolIntervalLocked() time.Duration {
	return e.config.ProtocolPeriod + time.Duration(e.lhm)*(e.config.ProtocolPeriod/4)
}

func (e *Engine) dynamicPingTimeoutLocked() time.Duration {
	return e.config.PingTimeout + time.Duration(e.lhm)*(e.config.PingTimeout/4)
}

func (e *Engine) Settings() swimshell.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return swimshell.Settings{ExtensionUnreachability: e.config.ExtensionUnreachability}
}

