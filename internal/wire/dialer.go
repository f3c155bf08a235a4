package wire

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultDialTimeout bounds how long Dial waits to establish a connection.
const DefaultDialTimeout = 5 * time.Second

// pooledConn serializes request/reply over one TCP connection: like a
// ZeroMQ REQ socket, at most one request may be outstanding on it at a
// time, so its mutex is held for the full round trip.
type pooledConn struct {
	mu sync.Mutex
	nc net.Conn
	rw *bufio.ReadWriter
}

// Dialer is a pool of request/reply connections keyed by address: a map
// guarded by a mutex, double-checked on the write path, with connections
// reused across calls and torn down lazily on error.
type Dialer struct {
	mu          sync.Mutex
	conns       map[string]*pooledConn
	dialTimeout time.Duration
}

// NewDialer creates a Dialer. A zero dialTimeout uses DefaultDialTimeout.
func NewDialer(dialTimeout time.Duration) *Dialer {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &Dialer{conns: make(map[string]*pooledConn), dialTimeout: dialTimeout}
}

func (d *Dialer) getOrDial(addr string) (*pooledConn, error) {
	d.mu.Lock()
	if pc, ok := d.conns[addr]; ok {
		d.mu.Unlock()
		return pc, nil
	}
	d.mu.Unlock()

	nc, err := net.DialTimeout("tcp", addr, d.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	pc := &pooledConn{nc: nc, rw: bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.conns[addr]; ok {
		nc.Close()
		return existing, nil
	}
	d.conns[addr] = pc
	return pc, nil
}

func (d *Dialer) drop(addr string, pc *pooledConn) {
	d.mu.Lock()
	if d.conns[addr] == pc {
		delete(d.conns, addr)
	}
	d.mu.Unlock()
	pc.nc.Close()
}

// Request sends payload as one message to addr and returns the reply
// frames. ctx's deadline, if any, bounds the whole round trip. On any I/O
// error the pooled connection is dropped so the next call redials.
func (d *Dialer) Request(ctx context.Context, addr string, payload [][]byte) ([][]byte, error) {
	pc, err := d.getOrDial(addr)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		pc.nc.SetDeadline(dl)
	} else {
		pc.nc.SetDeadline(time.Time{})
	}

	if err := WriteMessage(pc.rw.Writer, payload); err != nil {
		d.drop(addr, pc)
		return nil, err
	}
	reply, err := ReadMessage(pc.rw.Reader)
	if err != nil {
		d.drop(addr, pc)
		return nil, err
	}
	return reply, nil
}

// Close closes every pooled connection.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, pc := range d.conns {
		pc.nc.Close()
		delete(d.conns, addr)
	}
	return nil
}
