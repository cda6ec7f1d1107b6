package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridline-data/trackside/internal/monitoring"
	"github.com/gridline-data/trackside/internal/queue"
	"github.com/gridline-data/trackside/internal/telemetry"
)

// DefaultReadTimeout bounds each blocking receive so the run loop can
// observe Stop or context cancellation.
const DefaultReadTimeout = 500 * time.Millisecond

// ReceiverConfig contains configuration options for the UDP receiver.
type ReceiverConfig struct {
	Address     string // bind address, e.g. ":9996"
	Queue       *queue.Bounded[telemetry.Sample]
	ReadTimeout time.Duration // defaults to DefaultReadTimeout
	RcvBuf      int           // optional socket receive buffer size
}

// Receiver binds a datagram endpoint and forwards decoded samples into
// the bounded hand-off queue. Malformed payloads are discarded
// silently; payloads lacking a timestamp are stamped with the local
// receive time. Many senders may target one receiver.
type Receiver struct {
	cfg     ReceiverConfig
	running atomic.Bool

	mu   sync.Mutex
	conn *net.UDPConn

	malformed atomic.Uint64
	dropped   atomic.Uint64
}

// NewReceiver creates a receiver with the provided configuration.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Receiver{cfg: cfg}
}

// Run binds the endpoint and blocks receiving datagrams until Stop is
// called or ctx is cancelled. The socket is created per call, so a
// stopped receiver can be started again cleanly.
func (r *Receiver) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", r.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.running.Store(true)
	defer func() {
		r.running.Store(false)
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()
	}()

	if r.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(r.cfg.RcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer to %d: %v", r.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("telemetry receiver listening on %s", conn.LocalAddr())

	buf := make([]byte, 4096)
	for r.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue // re-check the running flag
			}
			// A closed socket is the expected shutdown path.
			if errors.Is(err, net.ErrClosed) || !r.running.Load() || ctx.Err() != nil {
				return nil
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		sample, err := telemetry.Decode(buf[:n])
		if err != nil {
			r.malformed.Add(1)
			continue
		}
		// A zero timestamp doubles as the absent sentinel: a payload
		// carrying an explicit "ts":0 is restamped too.
		if sample.TS == 0 {
			sample.TS = float64(time.Now().UnixNano()) / 1e9
		}
		if r.cfg.Queue != nil && !r.cfg.Queue.TryPush(sample) {
			r.dropped.Add(1)
		}
	}
	return nil
}

// Stop requests the run loop to exit and closes the endpoint to unblock
// any in-flight receive. It is idempotent.
func (r *Receiver) Stop() {
	r.running.Store(false)
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// LocalAddr returns the bound endpoint address, or nil when the
// receiver is not running. Useful when binding to port 0.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Running reports whether the receive loop is active.
func (r *Receiver) Running() bool { return r.running.Load() }

// Malformed returns the count of datagrams discarded as not well-formed.
func (r *Receiver) Malformed() uint64 { return r.malformed.Load() }

// Dropped returns the count of samples dropped on a full hand-off queue.
func (r *Receiver) Dropped() uint64 { return r.dropped.Load() }
