package swimshell

import "sync"

// gate serializes every mutation of Shell's loop-owned state onto a
// single goroutine. Every exported Shell method funnels through
// gate.run, whatever goroutine calls it from — a timer firing, a
// Network completion callback, or an embedder's CLI/API goroutine.
// Tasks run in the order they are submitted.
//
// Internal handler code that needs to invoke another operation while
// already executing on the loop (for example, the tick driver
// escalating a suspicion timeout by calling the same path a direct
// ReceiveConfirmDead would use) calls the corresponding unexported
// function directly instead of resubmitting to the gate — it is
// already running single-threaded, so there is nothing to serialize
// against. This is the trampoline: the gate's enqueue path exists for
// cross-goroutine entry, and same-goroutine reentrancy is just a plain
// call.
type gate struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

func newGate() *gate {
	g := &gate{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	g.wg.Add(1)
	go g.loop()
	return g
}

func (g *gate) loop() {
	defer g.wg.Done()
	for {
		select {
		case f := <-g.tasks:
			f()
		case <-g.done:
			// Drain whatever was queued before shutdown so pending
			// completions don't block their callers forever.
			for {
				select {
				case f := <-g.tasks:
					f()
				default:
					return
				}
			}
		}
	}
}

// run submits f for execution on the loop goroutine. It never blocks
// the caller on f's completion; callers that need a result pass a
// closure that writes it into a variable they read later, or use a
// completion callback.
func (g *gate) run(f func()) {
	select {
	case g.tasks <- f:
	case <-g.done:
	}
}

// shutdown stops accepting new work after draining what is already
// queued, and waits for the loop goroutine to exit.
func (g *gate) shutdown() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
	g.wg.Wait()
}
