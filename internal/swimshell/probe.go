package swimshell

import "time"

// startDirectProbe sends a direct ping and arranges for its single
// completion to re-enter the loop. instr.Origin is non-nil when this
// probe is serving an inbound ping-request as a relay, in which case
// the outcome is forwarded to the origin as an ack/nack rather than
// fed into our own engine's health bookkeeping.
func (s *Shell) startDirectProbe(instr DirectPingInstruction) {
	s.recorder.ProbeSent("direct")
	target := instr.Target
	origin := instr.Origin
	seq := instr.Seq
	timeout := instr.Timeout
	payload := s.engine.MakeGossipPayload(target)

	NewPeer(target, s.network).Ping(s.self, payload, timeout, seq, func(result ProbeResult) {
		s.gate.run(func() {
			s.completeDirectProbe(target, origin, seq, timeout, result)
		})
	})
}

func (s *Shell) completeDirectProbe(target Node, origin *Node, seq uint64, timeout time.Duration, result ProbeResult) {
	resp := s.buildResponse(target, origin, seq, timeout, result)
	if resp.Kind == ResponseAck {
		s.recorder.AckReceived("direct")
	} else {
		s.recorder.ProbeTimedOut("direct")
	}

	// Whether this probe served our own periodic tick or a relayed
	// ping-request, the engine decides what happens next: forward an
	// ack/nack to resp.Origin when relaying, or fall through to its
	// own indirect-probe decision when it was our own probe.
	s.dispatchPingResponse(s.engine.OnPingResponse(resp))
}

// startIndirectProbe fans a ping-request out to every relay the engine
// selected, tracking a first-success promise: the first relay ack
// resolves the promise and drives Engine.OnPingRequestResponse, and
// failures do not resolve it; once every relay has failed, the
// aggregate failure (seq 0) drives it instead. Every completion, win
// or not, still feeds Engine.OnEveryPingRequestResponse.
func (s *Shell) startIndirectProbe(instr PingRequestsInstruction) {
	if len(instr.Relays) == 0 {
		s.dispatchPingRequestResponse(s.engine.OnPingRequestResponse(
			Response{Kind: ResponseTimeout, Target: instr.Target, Timeout: instr.Timeout, Seq: 0},
			instr.Target,
		))
		return
	}

	id := s.nextCorrelationID()
	s.indirect[id] = &indirectProbe{
		target:    instr.Target,
		remaining: len(instr.Relays),
		fallback:  Response{Kind: ResponseTimeout, Target: instr.Target, Timeout: instr.Timeout, Seq: 0},
	}

	for _, relay := range instr.Relays {
		s.recorder.ProbeSent("indirect")
		r := relay
		NewPeer(r.Relay, s.network).PingRequest(s.self, instr.Target, r.Payload, instr.Timeout, r.Seq, func(result ProbeResult) {
			s.gate.run(func() {
				s.completeIndirectProbe(id, r.Seq, instr.Timeout, result)
			})
		})
	}
}

func (s *Shell) completeIndirectProbe(id uint64, relaySeq uint64, timeout time.Duration, result ProbeResult) {
	ip, ok := s.indirect[id]
	if !ok {
		return
	}
	ip.remaining--

	resp := s.buildResponse(ip.target, nil, relaySeq, timeout, result)
	if resp.Kind == ResponseAck {
		s.recorder.AckReceived("indirect")
	} else {
		s.recorder.ProbeTimedOut("indirect")
	}

	s.engine.OnEveryPingRequestResponse(resp, ip.target)

	if ip.resolved {
		if ip.remaining == 0 {
			delete(s.indirect, id)
		}
		return
	}

	if resp.Kind == ResponseAck {
		ip.resolved = true
		s.dispatchPingRequestResponse(s.engine.OnPingRequestResponse(resp, ip.target))
		if ip.remaining == 0 {
			delete(s.indirect, id)
		}
		return
	}

	// No single relay's sequence number is authoritative for the
	// ping-request as a whole, so the aggregate fallback always
	// reports seq 0 rather than borrowing the last relay's.
	ip.fallback = Response{Kind: resp.Kind, Target: ip.target, Timeout: timeout, Seq: 0}
	if ip.remaining == 0 {
		ip.resolved = true
		s.dispatchPingRequestResponse(s.engine.OnPingRequestResponse(ip.fallback, ip.target))
		delete(s.indirect, id)
	}
}

func (s *Shell) buildResponse(target Node, origin *Node, seq uint64, timeout time.Duration, result ProbeResult) Response {
	if result.Ack != nil {
		return Response{
			Kind:        ResponseAck,
			From:        result.Ack.From,
			Incarnation: result.Ack.Incarnation,
			Payload:     result.Ack.Payload,
			Target:      target,
			Origin:      origin,
			Timeout:     timeout,
			Seq:         seq,
		}
	}
	if result.Nack {
		return Response{Kind: ResponseNack, Target: target, Origin: origin, Timeout: timeout, Seq: seq}
	}
	return Response{Kind: ResponseTimeout, Target: target, Origin: origin, Timeout: timeout, Seq: seq}
}
