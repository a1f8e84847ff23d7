package swimshell

import (
	"log"
	"os"
	"time"
)

// bootstrapRetryInterval is the fixed, unbounded retry period for
// initial-contact monitoring (spec open question: the shell retries
// forever rather than giving up after N attempts, since a seed node
// that is briefly unreachable at startup should not permanently
// exclude a node from the cluster).
const bootstrapRetryInterval = 5 * time.Second

// AnnounceFunc is how the shell delivers de-duplicated status changes
// to its embedder: every change to a new status kind for a node is
// delivered, including alive<->suspect; changes are not filtered down
// to reachability-boundary crossings. It is called on the loop
// goroutine; slow or blocking implementations will stall the shell.
type AnnounceFunc func(MemberStatusChange)

// Config configures a Shell at construction time.
type Config struct {
	Self                    Node
	InitialContactPoints    []Node
	ExtensionUnreachability bool
	IndirectFanout          int

	Engine   Engine
	Network  Network
	Clock    Clock
	Recorder Recorder
	Logger   *log.Logger
	OnChange AnnounceFunc

	// RunProtocolLoop, when true, schedules the first periodic tick at
	// construction. Tests that only want to drive the shell by hand
	// (inbound messages, explicit ticks) leave this false.
	RunProtocolLoop bool
}

// pendingProbe tracks a single outstanding direct probe (tick- or
// ping-request-originated) awaiting completion.
type pendingProbe struct {
	target Node
	origin *Node
	seq    uint64
}

// indirectProbe tracks the first-success promise over a fan-out of
// ping-request relays: the first relay ack wins the right to drive
// Engine.OnPingRequestResponse (or, if every relay fails, the
// aggregate fallback does); every completion, winner or not, still
// feeds Engine.OnEveryPingRequestResponse.
type indirectProbe struct {
	target    Node
	remaining int
	resolved  bool
	fallback  Response
}

// Shell is the driver shell: it owns the gate, the engine, the
// network, the clock, and every piece of loop-exclusive state. All of
// its exported methods are safe to call from any goroutine.
type Shell struct {
	gate *gate

	engine   Engine
	network  Network
	clock    Clock
	recorder Recorder
	logger   *log.Logger
	onChange AnnounceFunc

	self                    Node
	indirectFanout          int
	extensionUnreachability bool

	// loop-owned state below; touched only from inside gate.run.
	tickTimer    Cancellable
	correlation  uint64
	indirect     map[uint64]*indirectProbe
	monitoring   map[string]Cancellable // address key -> pending retry timer
	lastReported map[string]StatusKind  // address key -> last kind delivered to onChange
	stopped      bool
}

func addressKey(n Node) string {
	return n.Address + "|" + itoa(int(n.Port))
}

// itoa avoids pulling in strconv just for this one call site mirrors
// the teacher's preference for minimal imports in hot paths; strconv
// is fine too, but this keeps the key format trivially inspectable.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// New constructs a Shell, announces self as alive unconditionally, and
// begins monitoring every configured initial contact point. If
// cfg.RunProtocolLoop is set, the first periodic tick is scheduled
// before New returns.
func New(cfg Config) *Shell {
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[swimshell] ", log.LstdFlags)
	}
	if cfg.IndirectFanout <= 0 {
		cfg.IndirectFanout = 3
	}

	s := &Shell{
		gate:                    newGate(),
		engine:                  cfg.Engine,
		network:                 cfg.Network,
		clock:                   cfg.Clock,
		recorder:                cfg.Recorder,
		logger:                  cfg.Logger,
		onChange:                cfg.OnChange,
		self:                    cfg.Self,
		indirectFanout:          cfg.IndirectFanout,
		extensionUnreachability: cfg.ExtensionUnreachability,
		indirect:                make(map[uint64]*indirectProbe),
		monitoring:              make(map[string]Cancellable),
		lastReported:            make(map[string]StatusKind),
	}

	started := make(chan struct{})
	s.gate.run(func() {
		s.announce(MemberStatusChange{Member: Member{Node: s.self, Status: Alive(0), StartedAt: s.clock.Now()}})
		for _, c := range cfg.InitialContactPoints {
			s.beginMonitoring(c)
		}
		if cfg.RunProtocolLoop {
			s.scheduleNextTick()
		}
		close(started)
	})
	<-started

	return s
}

func (s *Shell) nextCorrelationID() uint64 {
	s.correlation++
	return s.correlation
}

// Shutdown cancels the pending tick and any in-flight bootstrap
// retries, then stops the loop goroutine. It is safe to call more than
// once.
func (s *Shell) Shutdown() {
	s.gate.run(func() {
		if s.stopped {
			return
		}
		s.stopped = true
		if s.tickTimer != nil {
			s.tickTimer.Cancel()
			s.tickTimer = nil
		}
		for k, t := range s.monitoring {
			if t != nil {
				t.Cancel()
			}
			delete(s.monitoring, k)
		}
	})
	s.gate.shutdown()
}
