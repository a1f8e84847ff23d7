package swimshell

// ReceiveStartMonitoring begins bootstrapping peer: an immediate
// contact attempt, retried forever at a fixed interval until the peer
// becomes a known member or monitoring is cancelled by
// ReceiveConfirmDead or Shutdown. Calling it again for a peer already
// being monitored is a no-op.
func (s *Shell) ReceiveStartMonitoring(peer Node) {
	s.gate.run(func() {
		s.beginMonitoring(peer)
	})
}

// ReceiveConfirmDead confirms peer dead directly, bypassing the
// suspicion timeout, and cancels any bootstrap retry in flight for it.
func (s *Shell) ReceiveConfirmDead(peer Node) {
	s.gate.run(func() {
		s.cancelMonitoring(peer)
		result := s.engine.ConfirmDead(peer)
		if result.Applied {
			s.announce(result.Change)
		}
	})
}

func (s *Shell) beginMonitoring(peer Node) {
	if peer.EqualAddress(s.self) {
		s.logger.Printf("[bootstrap] refusing to monitor self: %s:%d", peer.Address, peer.Port)
		return
	}
	key := addressKey(peer)
	if _, already := s.monitoring[key]; already {
		return
	}
	s.monitoring[key] = nil
	s.attemptContact(peer)
}

func (s *Shell) cancelMonitoring(peer Node) {
	key := addressKey(peer)
	if t, ok := s.monitoring[key]; ok {
		if t != nil {
			t.Cancel()
		}
		delete(s.monitoring, key)
	}
}

func (s *Shell) attemptContact(peer Node) {
	if s.stopped {
		return
	}
	key := addressKey(peer)
	if _, inProgress := s.monitoring[key]; !inProgress {
		return
	}
	if s.engine.IsMember(peer, true) {
		delete(s.monitoring, key)
		return
	}

	seq := s.engine.NextSequenceNumber()
	payload := s.engine.MakeGossipPayload(peer)
	timeout := s.engine.DynamicLHMPingTimeout()
	s.recorder.ProbeSent("bootstrap")

	NewPeer(peer, s.network).Ping(s.self, payload, timeout, seq, func(result ProbeResult) {
		s.gate.run(func() {
			s.completeContact(peer, result)
		})
	})
}

func (s *Shell) completeContact(peer Node, result ProbeResult) {
	key := addressKey(peer)
	if _, inProgress := s.monitoring[key]; !inProgress {
		return
	}

	if result.Ack != nil {
		s.recorder.AckReceived("bootstrap")
		resp := Response{
			Kind:        ResponseAck,
			From:        result.Ack.From,
			Incarnation: result.Ack.Incarnation,
			Payload:     result.Ack.Payload,
			Target:      peer,
		}
		s.dispatchPingResponse(s.engine.OnPingResponse(resp))
		if s.engine.IsMember(peer, true) {
			delete(s.monitoring, key)
			return
		}
	} else {
		s.recorder.ProbeTimedOut("bootstrap")
	}

	s.scheduleContactRetry(peer)
}

func (s *Shell) scheduleContactRetry(peer Node) {
	if s.stopped {
		return
	}
	key := addressKey(peer)
	s.monitoring[key] = s.clock.AfterFunc(bootstrapRetryInterval, func() {
		s.gate.run(func() { s.attemptContact(peer) })
	})
}
