package swim

import (
	"testing"

	"github.com/tutu-network/swimshell/internal/swimshell"
)

func node(addr string) swimshell.Node {
	return swimshell.Node{Address: addr, Port: 7946, UID: addr}
}

func TestNewEngineSeedsSelfAlive(t *testing.T) {
	self := node("10.0.0.1")
	e := NewEngine(self, DefaultConfig())

	m, ok := e.MemberFor(self)
	if !ok {
		t.Fatal("expected self to be a known member")
	}
	if m.Status.Kind != swimshell.StatusAlive {
		t.Fatalf("expected self alive, got %v", m.Status.Kind)
	}
	if e.OtherMemberCount() != 0 {
		t.Fatalf("expected no other members yet, got %d", e.OtherMemberCount())
	}
}

func TestOnPingIntroducesUnknownSenderAsAlive(t *testing.T) {
	self := node("10.0.0.1")
	peer := node("10.0.0.2")
	e := NewEngine(self, DefaultConfig())

	directives := e.OnPing(peer, nil, 1)

	var sawAlive, sawAck bool
	for _, d := range directives {
		switch d.Kind {
		case swimshell.PingDirectiveGossipProcessed:
			if d.Gossip.Kind == swimshell.GossipApplied && d.Gossip.Change.Member.Node == peer {
				sawAlive = true
			}
		case swimshell.PingDirectiveSendAck:
			sawAck = true
			if d.SendAck.ReplyTo != peer {
				t.Fatalf("expected ack addressed to %+v, got %+v", peer, d.SendAck.ReplyTo)
			}
		}
	}
	if !sawAlive {
		t.Fatal("expected the unknown sender to be introduced as alive")
	}
	if !sawAck {
		t.Fatal("expected a send_ack directive")
	}
	if _, ok := e.MemberFor(peer); !ok {
		t.Fatal("expected peer to now be a known member")
	}
}

func TestOnPingRequestIgnoresUnknownTarget(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	replyTo := node("10.0.0.3")
	e := NewEngine(self, DefaultConfig())

	directives := e.OnPingRequest(target, replyTo, nil)
	for _, d := range directives {
		if d.Kind == swimshell.PingRequestDirectiveSendPing {
			t.Fatal("expected no send_ping directive for an unknown target")
		}
	}
}

func TestOnPingRequestSendsPingWithOriginWhenTargetKnown(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	replyTo := node("10.0.0.3")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)

	directives := e.OnPingRequest(target, replyTo, nil)

	var found bool
	for _, d := range directives {
		if d.Kind == swimshell.PingRequestDirectiveSendPing {
			found = true
			if d.SendPing.Origin == nil || *d.SendPing.Origin != replyTo {
				t.Fatalf("expected origin %+v, got %+v", replyTo, d.SendPing.Origin)
			}
			if d.SendPing.Target != target {
				t.Fatalf("expected target %+v, got %+v", target, d.SendPing.Target)
			}
		}
	}
	if !found {
		t.Fatal("expected a send_ping directive")
	}
}

func TestOnPingResponseWithOriginForwardsAckWithoutIndirectFanout(t *testing.T) {
	self := node("10.0.0.1")
	relayedTarget := node("10.0.0.2")
	origin := node("10.0.0.3")
	e := NewEngine(self, DefaultConfig())

	directives := e.OnPingResponse(swimshell.Response{
		Kind:   swimshell.ResponseAck,
		Target: relayedTarget,
		Origin: &origin,
		Seq:    7,
	})

	if len(directives) != 1 || directives[0].Kind != swimshell.PingResponseDirectiveSendAck {
		t.Fatalf("expected exactly one send_ack directive, got %+v", directives)
	}
	if directives[0].SendAck.ReplyTo != origin {
		t.Fatalf("expected ack addressed to origin %+v, got %+v", origin, directives[0].SendAck.ReplyTo)
	}
}

func TestOnPingResponseWithOriginForwardsNackOnTimeout(t *testing.T) {
	self := node("10.0.0.1")
	relayedTarget := node("10.0.0.2")
	origin := node("10.0.0.3")
	e := NewEngine(self, DefaultConfig())

	directives := e.OnPingResponse(swimshell.Response{
		Kind:   swimshell.ResponseTimeout,
		Target: relayedTarget,
		Origin: &origin,
		Seq:    7,
	})

	if len(directives) != 1 || directives[0].Kind != swimshell.PingResponseDirectiveSendNack {
		t.Fatalf("expected exactly one send_nack directive, got %+v", directives)
	}
}

func TestOnPingResponseWithoutOriginMarksAliveOnAck(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)

	e.OnPingResponse(swimshell.Response{Kind: swimshell.ResponseAck, Target: target, Incarnation: 3})

	m, _ := e.MemberFor(target)
	if m.Status.Kind != swimshell.StatusAlive {
		t.Fatalf("expected target to remain alive, got %v", m.Status.Kind)
	}
	if m.Status.Incarnation != 3 {
		t.Fatalf("expected incarnation bumped to 3, got %d", m.Status.Incarnation)
	}
}

func TestOnPingResponseWithoutOriginSendsPingRequestsOnTimeout(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	relay := node("10.0.0.3")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)
	e.applyStatus(relay, swimshell.Alive(0), e.members[addressKey(self)].startedAt)

	directives := e.OnPingResponse(swimshell.Response{Kind: swimshell.ResponseTimeout, Target: target})

	var found bool
	for _, d := range directives {
		if d.Kind == swimshell.PingResponseDirectiveSendPingRequests {
			found = true
			if len(d.SendPingRequests.Relays) != 1 || d.SendPingRequests.Relays[0].Relay != relay {
				t.Fatalf("expected relay %+v selected, got %+v", relay, d.SendPingRequests.Relays)
			}
		}
	}
	if !found {
		t.Fatal("expected a send_ping_requests directive")
	}
}

func TestOnPingRequestResponseAliveAndNewlySuspect(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)

	aliveDirectives := e.OnPingRequestResponse(swimshell.Response{Kind: swimshell.ResponseAck, Incarnation: 2}, target)
	var sawAlive bool
	for _, d := range aliveDirectives {
		if d.Kind == swimshell.PingRequestResponseDirectiveAlive {
			sawAlive = true
		}
	}
	if !sawAlive {
		t.Fatal("expected an alive directive on ack")
	}

	suspectDirectives := e.OnPingRequestResponse(swimshell.Response{Kind: swimshell.ResponseTimeout}, target)
	var sawSuspect bool
	for _, d := range suspectDirectives {
		if d.Kind == swimshell.PingRequestResponseDirectiveNewlySuspect {
			sawSuspect = true
			if d.Suspect.Status.Kind != swimshell.StatusSuspect {
				t.Fatalf("expected suspect status, got %v", d.Suspect.Status.Kind)
			}
		}
	}
	if !sawSuspect {
		t.Fatal("expected a newly-suspect directive on timeout")
	}
}

func TestOnPingRequestResponseNackDoesNotChangeMembership(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)

	directives := e.OnPingRequestResponse(swimshell.Response{Kind: swimshell.ResponseNack}, target)
	if len(directives) != 1 || directives[0].Kind != swimshell.PingRequestResponseDirectiveNackReceived {
		t.Fatalf("expected exactly a nack_received directive, got %+v", directives)
	}
	m, _ := e.MemberFor(target)
	if m.Status.Kind != swimshell.StatusAlive {
		t.Fatalf("expected target status unchanged by nack, got %v", m.Status.Kind)
	}
}

func TestOnPeriodicPingTickIgnoresWhenNoOtherMembers(t *testing.T) {
	self := node("10.0.0.1")
	e := NewEngine(self, DefaultConfig())

	d := e.OnPeriodicPingTick()
	if d.Kind != swimshell.TickDirectiveIgnore {
		t.Fatalf("expected ignore with no other members, got %v", d.Kind)
	}
}

func TestMarkEscalatesToUnreachable(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)
	e.applyStatus(target, swimshell.Suspect(1, nil), e.members[addressKey(self)].startedAt)

	result := e.Mark(target, swimshell.Unreachable(1))
	if !result.Applied {
		t.Fatal("expected Mark to apply the escalation")
	}
	if result.New.Kind != swimshell.StatusUnreachable {
		t.Fatalf("expected unreachable, got %v", result.New.Kind)
	}
}

func TestConfirmDeadRemovesMember(t *testing.T) {
	self := node("10.0.0.1")
	target := node("10.0.0.2")
	e := NewEngine(self, DefaultConfig())
	e.applyStatus(target, swimshell.Alive(0), e.members[addressKey(self)].startedAt)
	e.applyStatus(target, swimshell.Suspect(1, nil), e.members[addressKey(self)].startedAt)

	result := e.ConfirmDead(target)
	if !result.Applied {
		t.Fatal("expected ConfirmDead to apply")
	}
	if _, ok := e.MemberFor(target); ok {
		t.Fatal("expected the reaped member to be gone")
	}
}

func TestSuspicionTimeoutShrinksWithCorroborationDownToFloor(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(node("10.0.0.1"), cfg)

	base := e.SuspicionTimeout(1)
	if base != cfg.SuspicionTTL {
		t.Fatalf("expected base timeout with a single suspector, got %v", base)
	}

	shrunk := e.SuspicionTimeout(10)
	if shrunk != cfg.SuspicionFloor {
		t.Fatalf("expected heavy corroboration to bottom out at the floor, got %v", shrunk)
	}
}

func TestLogNGrowsWithMembership(t *testing.T) {
	e := NewEngine(node("10.0.0.1"), DefaultConfig())
	first := e.logN()
	for i := 0; i < 20; i++ {
		e.applyStatus(node("10.0.0."+string(rune('2'+i))), swimshell.Alive(0), e.members[addressKey(e.self)].startedAt)
	}
	if e.logN() <= first {
		t.Fatalf("expected logN to grow as membership grows, got %d -> %d", first, e.logN())
	}
}
