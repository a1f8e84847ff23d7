// Package swim implements the SWIM instance: the protocol-logic engine
// that decides directives in response to pings, ping-requests, probe
// responses, and periodic ticks. It performs no network I/O and owns
// no timers; swimshell.Shell drives it and executes its directives.
package swim

import "time"

// Config controls the engine's protocol parameters, grounded in the
// same knobs the teacher's gossip.Config exposes.
type Config struct {
	IndirectFanout          int           // K: how many relays an indirect probe uses
	Lambda                  int           // piggyback retransmission factor
	ProtocolPeriod          time.Duration // base probe-cycle interval
	PingTimeout             time.Duration // base direct-ack timeout
	SuspicionTTL            time.Duration // base suspicion window before escalation
	SuspicionFloor          time.Duration // minimum suspicion window regardless of corroboration
	ExtensionUnreachability bool
}

// DefaultConfig returns conservative defaults in the teacher's style.
func DefaultConfig() Config {
	return Config{
		IndirectFanout: 3,
		Lambda:         3,
		ProtocolPeriod: 1 * time.Second,
		PingTimeout:    500 * time.Millisecond,
		SuspicionTTL:   5 * time.Second,
		SuspicionFloor: 1 * time.Second,
	}
}
