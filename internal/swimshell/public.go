package swimshell

// Self returns the shell's own node identity.
func (s *Shell) Self() Node {
	return s.self
}

// Members returns a snapshot of the engine's known membership. Safe to
// call from any goroutine; it round-trips through the gate so the
// snapshot reflects a consistent point in the loop's history.
func (s *Shell) Members() []Member {
	done := make(chan []Member, 1)
	s.gate.run(func() {
		done <- s.engine.AllMembers()
	})
	return <-done
}

// Flush blocks until every task queued on the gate before this call
// has run. It exists for deterministic tests that need to wait for an
// asynchronous completion (a probe, a timer) to be processed before
// making assertions.
func (s *Shell) Flush() {
	done := make(chan struct{})
	s.gate.run(func() { close(done) })
	<-done
}

// Tick forces one periodic-tick cycle immediately, bypassing the
// clock. Intended for tests driving the shell by hand.
func (s *Shell) Tick() {
	done := make(chan struct{})
	s.gate.run(func() {
		s.dispatchTick(s.engine.OnPeriodicPingTick())
		s.scanSuspicion()
		close(done)
	})
	<-done
}
