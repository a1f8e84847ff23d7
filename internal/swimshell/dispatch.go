package swimshell

// ReceivePing is the inbound entrypoint for a directly-received ping:
// the transport decodes the wire frame and calls this with the
// sender, its piggybacked gossip payload, and the ping's correlation
// sequence number.
func (s *Shell) ReceivePing(from Node, payload []byte, seq uint64) {
	s.gate.run(func() {
		s.dispatchPing(s.engine.OnPing(from, payload, seq))
	})
}

// ReceivePingRequest is the inbound entrypoint for an indirect
// ping-request: replyTo asks us to probe target on its behalf.
func (s *Shell) ReceivePingRequest(target, replyTo Node, payload []byte) {
	s.gate.run(func() {
		s.dispatchPingRequest(s.engine.OnPingRequest(target, replyTo, payload))
	})
}

// handleGossip applies or logs a piggybacked gossip outcome. Every
// directive variant that can carry piggyback data routes through here
// so the de-duplicated-announce rule in announce.go is applied
// uniformly regardless of which engine call produced the change.
func (s *Shell) handleGossip(outcome GossipOutcome) {
	s.recorder.DirectiveHandled("gossip_processed")
	switch outcome.Kind {
	case GossipApplied:
		if outcome.Change != nil {
			s.announce(*outcome.Change)
		}
	case GossipIgnored:
		if outcome.Message != "" {
			s.logger.Printf("[gossip] ignored (%s): %s", outcome.Level, outcome.Message)
		}
	}
}

func (s *Shell) dispatchPing(directives []PingDirective) {
	for _, d := range directives {
		switch d.Kind {
		case PingDirectiveGossipProcessed:
			s.handleGossip(d.Gossip)
		case PingDirectiveSendAck:
			s.recorder.DirectiveHandled("send_ack")
			a := d.SendAck
			NewPeer(a.ReplyTo, s.network).Ack(a.ID, s.self, a.Incarnation, a.Payload)
		}
	}
}

func (s *Shell) dispatchPingRequest(directives []PingRequestDirective) {
	for _, d := range directives {
		switch d.Kind {
		case PingRequestDirectiveGossipProcessed:
			s.handleGossip(d.Gossip)
		case PingRequestDirectiveIgnore:
			s.recorder.DirectiveHandled("ignore")
		case PingRequestDirectiveSendPing:
			s.recorder.DirectiveHandled("send_ping")
			s.startDirectProbe(*d.SendPing)
		}
	}
}

func (s *Shell) dispatchPingResponse(directives []PingResponseDirective) {
	for _, d := range directives {
		switch d.Kind {
		case PingResponseDirectiveGossipProcessed:
			s.handleGossip(d.Gossip)
		case PingResponseDirectiveSendAck:
			s.recorder.DirectiveHandled("send_ack")
			a := d.SendAck
			NewPeer(a.ReplyTo, s.network).Ack(a.ID, s.self, a.Incarnation, a.Payload)
		case PingResponseDirectiveSendNack:
			s.recorder.DirectiveHandled("send_nack")
			n := d.SendNack
			NewPeer(n.ReplyTo, s.network).Nack(n.ID, n.Target)
		case PingResponseDirectiveSendPingRequests:
			s.recorder.DirectiveHandled("send_ping_requests")
			s.startIndirectProbe(*d.SendPingRequests)
		}
	}
}

func (s *Shell) dispatchPingRequestResponse(directives []PingRequestResponseDirective) {
	for _, d := range directives {
		switch d.Kind {
		case PingRequestResponseDirectiveGossipProcessed:
			s.handleGossip(d.Gossip)
		case PingRequestResponseDirectiveAlive:
			s.recorder.DirectiveHandled("alive")
			if d.AliveMember != nil {
				s.announce(MemberStatusChange{PreviousStatus: d.AlivePrevious, Member: *d.AliveMember})
			}
		case PingRequestResponseDirectiveNewlySuspect:
			s.recorder.DirectiveHandled("newly_suspect")
			s.recorder.SuspicionRaised()
			if d.Suspect != nil {
				s.announce(MemberStatusChange{PreviousStatus: d.SuspectPrevious, Member: *d.Suspect})
			}
		case PingRequestResponseDirectiveNackReceived:
			s.recorder.DirectiveHandled("nack_received")
		}
	}
}

func (s *Shell) dispatchTick(d TickDirective) {
	switch d.Kind {
	case TickDirectiveIgnore:
		s.recorder.DirectiveHandled("ignore")
	case TickDirectiveSendPing:
		s.recorder.DirectiveHandled("send_ping")
		s.startDirectProbe(*d.SendPing)
	}
}
