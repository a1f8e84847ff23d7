package swimshell

import (
	"sync"
	"time"
)

// fakeClock is a manually-advanced Clock: Advance fires any timer
// whose deadline has passed, in the test goroutine, mirroring the way
// a real timer callback runs on its own goroutine and re-enters the
// shell through the gate.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock     *fakeClock
	at        time.Time
	f         func()
	cancelled bool
	fired     bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Cancellable {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Cancel() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.cancelled = true
}

// Advance moves the clock forward and synchronously fires any timer
// whose deadline is now due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, t := range c.timers {
		if !t.cancelled && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// pingCall/pingRequestCall/ackCall/nackCall record every send the
// fakeNetwork was asked to make, so tests can drive completions.
type pingCall struct {
	self, target Node
	payload      []byte
	timeout      time.Duration
	seq          uint64
	completion   func(ProbeResult)
}

type pingRequestCall struct {
	self, relay, target Node
	payload             []byte
	timeout             time.Duration
	seq                 uint64
	completion          func(ProbeResult)
}

type ackCall struct {
	target      Node
	id          uint64
	self        Node
	incarnation uint64
	payload     []byte
}

type nackCall struct {
	target  Node
	id      uint64
	subject Node
}

type fakeNetwork struct {
	mu           sync.Mutex
	pings        []pingCall
	pingRequests []pingRequestCall
	acks         []ackCall
	nacks        []nackCall
}

func (n *fakeNetwork) Ping(self, target Node, payload []byte, timeout time.Duration, seq uint64, completion func(ProbeResult)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pings = append(n.pings, pingCall{self, target, payload, timeout, seq, completion})
}

func (n *fakeNetwork) PingRequest(self, relay, target Node, payload []byte, timeout time.Duration, seq uint64, completion func(ProbeResult)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pingRequests = append(n.pingRequests, pingRequestCall{self, relay, target, payload, timeout, seq, completion})
}

func (n *fakeNetwork) Ack(target Node, id uint64, self Node, incarnation uint64, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acks = append(n.acks, ackCall{target, id, self, incarnation, payload})
}

func (n *fakeNetwork) Nack(target Node, id uint64, subject Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nacks = append(n.nacks, nackCall{target, id, subject})
}

func (n *fakeNetwork) lastPing() pingCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pings[len(n.pings)-1]
}

func (n *fakeNetwork) pingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pings)
}

func (n *fakeNetwork) pingRequestCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pingRequests)
}

// fakeEngine is a fully scriptable Engine: every method defers to an
// overridable hook, defaulting to an inert implementation so tests
// only need to set the hooks relevant to the scenario under test.
type fakeEngine struct {
	mu sync.Mutex

	onPing                     func(origin Node, payload []byte, seq uint64) []PingDirective
	onPingRequest              func(target, replyTo Node, payload []byte) []PingRequestDirective
	onPingResponse             func(resp Response) []PingResponseDirective
	onEveryPingRequestResponse func(resp Response, pinged Node)
	onPingRequestResponse      func(resp Response, pinged Node) []PingRequestResponseDirective
	onPeriodicPingTick         func() TickDirective
	mark                       func(peer Node, status MemberStatus) MarkResult
	confirmDead                func(peer Node) ConfirmDeadResult
	makeGossipPayload          func(target Node) []byte
	suspects                   func() []Member
	allMembers                 func() []Member
	otherMemberCount           func() int
	protocolPeriod             time.Duration
	memberFor                  func(node Node) (Member, bool)
	isMember                   func(peer Node, ignoreUID bool) bool
	suspicionTimeout           func(suspectedBy int) time.Duration
	dynamicInterval            time.Duration
	dynamicPingTimeout         time.Duration
	settings                   Settings

	seq              uint64
	everyCalls       []Response
	confirmDeadCalls []Node
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		protocolPeriod:     200 * time.Millisecond,
		dynamicInterval:    200 * time.Millisecond,
		dynamicPingTimeout: 50 * time.Millisecond,
	}
}

func (e *fakeEngine) OnPing(origin Node, payload []byte, seq uint64) []PingDirective {
	if e.onPing != nil {
		return e.onPing(origin, payload, seq)
	}
	return nil
}

func (e *fakeEngine) OnPingRequest(target, replyTo Node, payload []byte) []PingRequestDirective {
	if e.onPingRequest != nil {
		return e.onPingRequest(target, replyTo, payload)
	}
	return nil
}

func (e *fakeEngine) OnPingResponse(resp Response) []PingResponseDirective {
	if e.onPingResponse != nil {
		return e.onPingResponse(resp)
	}
	return nil
}

func (e *fakeEngine) OnEveryPingRequestResponse(resp Response, pinged Node) {
	e.mu.Lock()
	e.everyCalls = append(e.everyCalls, resp)
	e.mu.Unlock()
	if e.onEveryPingRequestResponse != nil {
		e.onEveryPingRequestResponse(resp, pinged)
	}
}

func (e *fakeEngine) OnPingRequestResponse(resp Response, pinged Node) []PingRequestResponseDirective {
	if e.onPingRequestResponse != nil {
		return e.onPingRequestResponse(resp, pinged)
	}
	return nil
}

func (e *fakeEngine) OnPeriodicPingTick() TickDirective {
	if e.onPeriodicPingTick != nil {
		return e.onPeriodicPingTick()
	}
	return TickDirective{Kind: TickDirectiveIgnore}
}

func (e *fakeEngine) Mark(peer Node, status MemberStatus) MarkResult {
	if e.mark != nil {
		return e.mark(peer, status)
	}
	return MarkResult{}
}

func (e *fakeEngine) ConfirmDead(peer Node) ConfirmDeadResult {
	e.mu.Lock()
	e.confirmDeadCalls = append(e.confirmDeadCalls, peer)
	e.mu.Unlock()
	if e.confirmDead != nil {
		return e.confirmDead(peer)
	}
	return ConfirmDeadResult{}
}

func (e *fakeEngine) MakeGossipPayload(target Node) []byte {
	if e.makeGossipPayload != nil {
		return e.makeGossipPayload(target)
	}
	return nil
}

func (e *fakeEngine) NextSequenceNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *fakeEngine) Suspects() []Member {
	if e.suspects != nil {
		return e.suspects()
	}
	return nil
}

func (e *fakeEngine) AllMembers() []Member {
	if e.allMembers != nil {
		return e.allMembers()
	}
	return nil
}

func (e *fakeEngine) OtherMemberCount() int {
	if e.otherMemberCount != nil {
		return e.otherMemberCount()
	}
	return 0
}

func (e *fakeEngine) ProtocolPeriod() time.Duration { return e.protocolPeriod }

func (e *fakeEngine) MemberFor(node Node) (Member, bool) {
	if e.memberFor != nil {
		return e.memberFor(node)
	}
	return Member{}, false
}

func (e *fakeEngine) IsMember(peer Node, ignoreUID bool) bool {
	if e.isMember != nil {
		return e.isMember(peer, ignoreUID)
	}
	return false
}

func (e *fakeEngine) SuspicionTimeout(suspectedBy int) time.Duration {
	if e.suspicionTimeout != nil {
		return e.suspicionTimeout(suspectedBy)
	}
	return time.Second
}

func (e *fakeEngine) DynamicLHMProtocolInterval() time.Duration { return e.dynamicInterval }
func (e *fakeEngine) DynamicLHMPingTimeout() time.Duration      { return e.dynamicPingTimeout }
func (e *fakeEngine) Settings() Settings                        { return e.settings }

func (e *fakeEngine) everyCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.everyCalls)
}

// startIndirectProbeForTest and announceForTest give tests synchronous
// access to loop-owned behavior that production code only ever
// reaches indirectly, through a dispatched directive.
func (s *Shell) startIndirectProbeForTest(instr PingRequestsInstruction) {
	done := make(chan struct{})
	s.gate.run(func() {
		s.startIndirectProbe(instr)
		close(done)
	})
	<-done
}

func (s *Shell) announceForTest(change MemberStatusChange) {
	done := make(chan struct{})
	s.gate.run(func() {
		s.announce(change)
		close(done)
	})
	<-done
}
