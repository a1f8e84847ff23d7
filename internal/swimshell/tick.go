package swimshell

// scheduleNextTick arranges for the next periodic tick at the
// engine's current dynamic (LHM-adjusted) protocol interval. At most
// one tick is ever pending: every call site that schedules a tick goes
// through this single path, and Shutdown cancels the pending one.
func (s *Shell) scheduleNextTick() {
	if s.stopped {
		return
	}
	interval := s.engine.DynamicLHMProtocolInterval()
	s.tickTimer = s.clock.AfterFunc(interval, func() {
		s.gate.run(s.fireTick)
	})
}

// fireTick runs one protocol period: ask the engine what to do this
// period, dispatch it, scan suspects for timed-out suspicion, then
// schedule the next tick. Already running on the loop goroutine.
func (s *Shell) fireTick() {
	if s.stopped {
		return
	}
	s.dispatchTick(s.engine.OnPeriodicPingTick())
	s.scanSuspicion()
	s.scheduleNextTick()
}

// scanSuspicion walks the engine's current suspect set and escalates
// any member whose suspicion window has elapsed. A suspect reported
// with no incarnation number is a transient engine-side condition
// (already being reaped) rather than an error; we skip it and keep
// scanning the rest of the set instead of aborting the tick.
func (s *Shell) scanSuspicion() {
	settings := s.engine.Settings()
	now := s.clock.Now()

	for _, m := range s.engine.Suspects() {
		if !m.Status.HasIncarnation {
			continue
		}
		timeout := s.engine.SuspicionTimeout(m.Status.SuspectedByCount())
		if now.Sub(m.StartedAt) < timeout {
			continue
		}

		if settings.ExtensionUnreachability {
			result := s.engine.Mark(m.Node, Unreachable(m.Status.Incarnation))
			if result.Applied {
				prev := result.Previous
				s.announce(MemberStatusChange{
					PreviousStatus: &prev,
					Member:         Member{Node: m.Node, Status: result.New, StartedAt: now},
				})
			}
			continue
		}

		result := s.engine.ConfirmDead(m.Node)
		if result.Applied {
			s.announce(result.Change)
		}
	}
}
