// Package transport moves telemetry samples between producer and
// consumer as best-effort JSON datagrams over UDP. Loss, reordering and
// duplication are expected and tolerated by every consumer.
package transport

import (
	"encoding/json"
	"net"

	"github.com/gridline-data/trackside/internal/telemetry"
)

// Sender serialises samples and emits them as single datagrams to a
// fixed destination. It implements sim.Emitter.
type Sender struct {
	conn net.Conn
}

// NewSender dials the destination address ("host:port"). Dialling a UDP
// address never performs a handshake, so this only fails on resolution
// errors.
func NewSender(addr string) (*Sender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn}, nil
}

// Emit sends one sample as a single datagram. Failures are swallowed:
// the transport is fire-and-forget and provides no delivery guarantee.
func (s *Sender) Emit(sample telemetry.Sample) {
	data, err := json.Marshal(sample)
	if err != nil {
		return
	}
	_, _ = s.conn.Write(data)
}

// Close releases the underlying socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
