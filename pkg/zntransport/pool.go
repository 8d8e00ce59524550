package zntransport

import (
	"context"
	"sync"
	"time"
)

// Pool reuses live Sessions keyed by peer address, adapted from
// core/connection_pool.go's ConnPool: same Acquire/Release/Close/Stats
// shape and the same idle-TTL reaper goroutine, generalized from pooling
// bare net.Conn to pooling Sessions (a Session already owns its net.Conn
// and read loop, so releasing one back to the pool just means "keep it
// around instead of closing it").
type Pool struct {
	dialer *Dialer

	mu      sync.Mutex
	idle    map[string][]*pooledSession
	maxIdle int
	idleTTL time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

type pooledSession struct {
	*Session
	addr     string
	lastUsed time.Time
}

// NewPool creates a Pool using dialer to establish new Sessions. maxIdle
// caps idle sessions kept per address; idleTTL bounds how long an idle
// session is kept before the reaper closes it.
func NewPool(dialer *Dialer, maxIdle int, idleTTL time.Duration) *Pool {
	p := &Pool{
		dialer:  dialer,
		idle:    make(map[string][]*pooledSession),
		maxIdle: maxIdle,
		idleTTL: idleTTL,
		closing: make(chan struct{}),
	}
	go p.reaper()
	return p
}

// Acquire returns an idle Session for addr if one exists, otherwise dials a
// new one.
func (p *Pool) Acquire(ctx context.Context, addr string) (*Session, error) {
	p.mu.Lock()
	list := p.idle[addr]
	if n := len(list); n > 0 {
		ps := list[n-1]
		p.idle[addr] = list[:n-1]
		p.mu.Unlock()
		return ps.Session, nil
	}
	p.mu.Unlock()

	return p.dialer.DialSession(ctx, addr)
}

// Release returns sess to the pool for reuse under addr, unless the pool is
// already at maxIdle for that address or sess's connection has failed, in
// which case it is closed.
func (p *Pool) Release(addr string, sess *Session) {
	select {
	case <-sess.done:
		return // already closed; nothing to pool
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxIdle > 0 && len(p.idle[addr]) < p.maxIdle {
		p.idle[addr] = append(p.idle[addr], &pooledSession{Session: sess, addr: addr, lastUsed: time.Now()})
		return
	}
	_ = sess.Close()
}

// Stats returns the total number of idle sessions across all addresses.
func (p *Pool) Stats() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, list := range p.idle {
		n += len(list)
	}
	return n
}

// Close closes every idle session and stops the reaper.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, list := range p.idle {
			for _, ps := range list {
				_ = ps.Close()
			}
		}
		p.idle = make(map[string][]*pooledSession)
	})
}

func (p *Pool) reaper() {
	ticker := time.NewTicker(p.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-p.idleTTL)
			p.mu.Lock()
			for addr, list := range p.idle {
				i := 0
				for _, ps := range list {
					if ps.lastUsed.Before(cutoff) {
						_ = ps.Close()
						continue
					}
					list[i] = ps
					i++
				}
				p.idle[addr] = list[:i]
			}
			p.mu.Unlock()
		case <-p.closing:
			return
		}
	}
}
