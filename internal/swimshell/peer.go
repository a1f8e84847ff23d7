package swimshell

import "time"

// ProbeResult is what the network layer hands back to a probe
// completion callback: either a real ack/nack payload or a transport
// failure (including a timeout), which the shell folds into a
// synthesized Response before handing it to the engine.
type ProbeResult struct {
	Ack      *AckPayload
	Nack     bool
	Err      error
	TimedOut bool
}

// AckPayload is the decoded contents of an ack response.
type AckPayload struct {
	From        Node
	Incarnation uint64
	Payload     []byte
}

// Network is the shell's sole collaborator for wire I/O. Completions
// are invoked from whatever goroutine the implementation uses for I/O
// (commonly a dedicated receive loop); the shell always re-enters
// itself through the Gate before touching any loop-owned state, so
// Network implementations never need to know about the shell's
// single-threading discipline.
type Network interface {
	// Ping sends a direct ping to target and arranges for completion
	// to be invoked exactly once, with either an ack or a failure,
	// no later than timeout after the call.
	Ping(self, target Node, payload []byte, timeout time.Duration, seq uint64, completion func(ProbeResult))

	// PingRequest asks relay to indirectly probe target on self's
	// behalf, with the same single-completion contract as Ping.
	PingRequest(self, relay, target Node, payload []byte, timeout time.Duration, seq uint64, completion func(ProbeResult))

	// Ack sends an ack reply for correlation id back to target.
	Ack(target Node, id uint64, self Node, incarnation uint64, payload []byte)

	// Nack sends a nack reply for correlation id back to target,
	// reporting that subject could not be reached.
	Nack(target Node, id uint64, subject Node)
}

// Peer is a (Node, Network) value: any Peer built over the same node
// and network is interchangeable for send operations, so the shell
// can construct one wherever it needs to address a node without
// tracking peer identity across calls.
type Peer struct {
	Node    Node
	network Network
}

// NewPeer builds a Peer handle addressing node over network.
func NewPeer(node Node, network Network) Peer {
	return Peer{Node: node, network: network}
}

func (p Peer) Ping(self Node, payload []byte, timeout time.Duration, seq uint64, completion func(ProbeResult)) {
	p.network.Ping(self, p.Node, payload, timeout, seq, completion)
}

func (p Peer) PingRequest(self, target Node, payload []byte, timeout time.Duration, seq uint64, completion func(ProbeResult)) {
	p.network.PingRequest(self, p.Node, target, payload, timeout, seq, completion)
}

func (p Peer) Ack(id uint64, self Node, incarnation uint64, payload []byte) {
	p.network.Ack(p.Node, id, self, incarnation, payload)
}

func (p Peer) Nack(id uint64, subject Node) {
	p.network.Nack(p.Node, id, subject)
}
