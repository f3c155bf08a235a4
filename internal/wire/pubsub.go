package wire

import (
	"context"
	"net"
	"sync"
	"time"
)

// publishDeadline bounds how long Publish will block writing to one slow
// subscriber before dropping it.
const publishDeadline = 2 * time.Second

// Publisher is the publish side of the membership gossip socket: it binds
// once and every peer that later subscribes receives every subsequent
// Publish call's frames. Delivery is best-effort: a subscriber that cannot
// keep up is dropped, not blocked on.
type Publisher struct {
	ln net.Listener

	mu   sync.Mutex
	subs map[net.Conn]struct{}
}

// NewPublisher binds addr.
func NewPublisher(addr string) (*Publisher, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Publisher{ln: ln, subs: make(map[net.Conn]struct{})}, nil
}

// Addr returns the bound address.
func (p *Publisher) Addr() string { return p.ln.Addr().String() }

// Serve accepts subscriber connections until ctx is cancelled.
func (p *Publisher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.ln.Close()
	}()
	for {
		nc, err := p.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.mu.Lock()
		p.subs[nc] = struct{}{}
		p.mu.Unlock()
		go p.watchDisconnect(nc)
	}
}

// watchDisconnect removes a subscriber once its connection goes away.
// Subscribers never send anything on this socket, so any read result
// (including EOF) means it disconnected.
func (p *Publisher) watchDisconnect(nc net.Conn) {
	buf := make([]byte, 1)
	nc.Read(buf)
	p.mu.Lock()
	delete(p.subs, nc)
	p.mu.Unlock()
	nc.Close()
}

// Publish sends frames to every currently connected subscriber.
func (p *Publisher) Publish(frames [][]byte) {
	p.mu.Lock()
	conns := make([]net.Conn, 0, len(p.subs))
	for nc := range p.subs {
		conns = append(conns, nc)
	}
	p.mu.Unlock()

	for _, nc := range conns {
		nc.SetWriteDeadline(time.Now().Add(publishDeadline))
		if err := WriteMessage(nc, frames); err != nil {
			p.mu.Lock()
			delete(p.subs, nc)
			p.mu.Unlock()
			nc.Close()
		}
	}
}

// SubscriberCount reports the current number of connected subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close stops accepting subscribers and closes all existing ones.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for nc := range p.subs {
		nc.Close()
	}
	p.subs = make(map[net.Conn]struct{})
	p.mu.Unlock()
	return p.ln.Close()
}

// Subscribe dials addr and invokes handler for every message published to
// it until ctx is cancelled or the connection is closed by the publisher.
// It does not reconnect; callers that want a durable subscription (as
// internal/publish does, tracking Registry membership) should call
// Subscribe again after it returns.
func Subscribe(ctx context.Context, addr string, dialTimeout time.Duration, handler func(frames [][]byte)) error {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer nc.Close()

	go func() {
		<-ctx.Done()
		nc.Close()
	}()

	for {
		frames, err := ReadMessage(nc)
		if err != nil {
			return err
		}
		handler(frames)
	}
}
