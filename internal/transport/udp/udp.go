// Package udp implements swimshell.Network over a real UDP socket,
// grounded in the teacher's gossip.SWIM.Start/receiveLoop/sendMessage
// read-deadline-and-continue polling loop.
package udp

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tutu-network/swimshell/internal/swimshell"
	"github.com/tutu-network/swimshell/internal/wire"
)

// Inbound is the shell's inbound entrypoints, reached from the receive
// loop after an envelope is decoded.
type Inbound interface {
	ReceivePing(from swimshell.Node, payload []byte, seq uint64)
	ReceivePingRequest(target, replyTo swimshell.Node, payload []byte)
}

type pendingProbe struct {
	completion func(swimshell.ProbeResult)
	timer      *time.Timer
	resolved   bool
}

// Network is a net.UDPConn-backed swimshell.Network.
type Network struct {
	self   swimshell.Node
	conn   *net.UDPConn
	logger *log.Logger

	mu      sync.Mutex
	pending map[uint64]*pendingProbe

	inbound Inbound
	done    chan struct{}
	wg      sync.WaitGroup
}

// Listen binds a UDP socket at self's address/port and returns a
// Network ready to send; call Serve to start the receive loop once an
// Inbound (normally the Shell) exists to hand messages to.
func Listen(self swimshell.Node, logger *log.Logger) (*Network, error) {
	if logger == nil {
		logger = log.Default()
	}
	addr := &net.UDPAddr{IP: net.ParseIP(self.Address), Port: int(self.Port)}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	return &Network{
		self:    self,
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]*pendingProbe),
		done:    make(chan struct{}),
	}, nil
}

// Serve starts the receive loop, decoding envelopes and dispatching
// them to inbound until Close is called.
func (n *Network) Serve(inbound Inbound) {
	n.inbound = inbound
	n.wg.Add(1)
	go n.receiveLoop()
}

func (n *Network) Close() error {
	close(n.done)
	err := n.conn.Close()
	n.wg.Wait()
	return err
}

func (n *Network) receiveLoop() {
	defer n.wg.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-n.done:
			return
		default:
		}

		n.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		size, _, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-n.done:
				return
			default:
				continue
			}
		}

		env, err := wire.Unmarshal(buf[:size])
		if err != nil {
			n.logger.Printf("[udp] malformed envelope: %v", err)
			continue
		}
		n.handleEnvelope(env)
	}
}

func (n *Network) handleEnvelope(env wire.Envelope) {
	from := identityToNode(env.From)
	switch env.Kind {
	case wire.KindPing:
		var body wire.PingBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return
		}
		if n.inbound != nil {
			n.inbound.ReceivePing(from, body.Gossip, env.Seq)
		}
	case wire.KindPingRequest:
		var body wire.PingRequestBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return
		}
		if n.inbound != nil {
			n.inbound.ReceivePingRequest(identityToNode(body.Target), from, body.Gossip)
		}
	case wire.KindAck:
		var body wire.AckBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return
		}
		n.resolve(env.Seq, swimshell.ProbeResult{Ack: &swimshell.AckPayload{
			From:        from,
			Incarnation: body.Incarnation,
			Payload:     body.Gossip,
		}})
	case wire.KindNack:
		n.resolve(env.Seq, swimshell.ProbeResult{Nack: true})
	}
}

func (n *Network) resolve(seq uint64, result swimshell.ProbeResult) {
	n.mu.Lock()
	p, ok := n.pending[seq]
	if ok {
		p.timer.Stop()
		delete(n.pending, seq)
	}
	n.mu.Unlock()
	if ok && !p.resolved {
		p.resolved = true
		p.completion(result)
	}
}

func (n *Network) register(seq uint64, timeout time.Duration, completion func(swimshell.ProbeResult)) {
	p := &pendingProbe{completion: completion}
	n.mu.Lock()
	n.pending[seq] = p
	n.mu.Unlock()
	p.timer = time.AfterFunc(timeout, func() {
		n.mu.Lock()
		_, stillPending := n.pending[seq]
		delete(n.pending, seq)
		n.mu.Unlock()
		if stillPending && !p.resolved {
			p.resolved = true
			completion(swimshell.ProbeResult{TimedOut: true})
		}
	})
}

func (n *Network) Ping(self, target swimshell.Node, payload []byte, timeout time.Duration, seq uint64, completion func(swimshell.ProbeResult)) {
	n.register(seq, timeout, completion)
	data, err := wire.Marshal(wire.KindPing, nodeToIdentity(self), seq, wire.PingBody{Gossip: payload})
	if err != nil {
		n.logger.Printf("[udp] encode ping: %v", err)
		return
	}
	n.send(target, data)
}

func (n *Network) PingRequest(self, relay, target swimshell.Node, payload []byte, timeout time.Duration, seq uint64, completion func(swimshell.ProbeResult)) {
	n.register(seq, timeout, completion)
	data, err := wire.Marshal(wire.KindPingRequest, nodeToIdentity(self), seq, wire.PingRequestBody{
		Target:  nodeToIdentity(target),
		Gossip:  payload,
		Timeout: timeout.Milliseconds(),
	})
	if err != nil {
		n.logger.Printf("[udp] encode ping-request: %v", err)
		return
	}
	n.send(relay, data)
}

func (n *Network) Ack(target swimshell.Node, id uint64, self swimshell.Node, incarnation uint64, payload []byte) {
	data, err := wire.Marshal(wire.KindAck, nodeToIdentity(self), id, wire.AckBody{Incarnation: incarnation, Gossip: payload})
	if err != nil {
		n.logger.Printf("[udp] encode ack: %v", err)
		return
	}
	n.send(target, data)
}

func (n *Network) Nack(target swimshell.Node, id uint64, subject swimshell.Node) {
	data, err := wire.Marshal(wire.KindNack, nodeToIdentity(n.self), id, wire.NackBody{Target: nodeToIdentity(subject)})
	if err != nil {
		n.logger.Printf("[udp] encode nack: %v", err)
		return
	}
	n.send(target, data)
}

func (n *Network) send(target swimshell.Node, data []byte) {
	addr := &net.UDPAddr{IP: net.ParseIP(target.Address), Port: int(target.Port)}
	if _, err := n.conn.WriteToUDP(data, addr); err != nil {
		n.logger.Printf("[udp] write to %s:%d: %v", target.Address, target.Port, err)
	}
}

func nodeToIdentity(n swimshell.Node) wire.Identity {
	return wire.Identity{Address: n.Address, Port: n.Port, UID: n.UID}
}

func identityToNode(id wire.Identity) swimshell.Node {
	return swimshell.Node{Address: id.Address, Port: id.Port, UID: id.UID}
}
