package topology

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/outpostlabs/sdamcore/address"
)

// ErrPoolClosed is returned by Borrow once a Pool has been closed.
var ErrPoolClosed = errors.New("connection pool is closed")

// Connection is the narrow handle a Pool hands out. The wire protocol
// spoken over it (BSON encode/decode, OP_MSG framing) is a collaborator's
// concern; this core only needs to open, borrow, and close connections.
type Connection interface {
	Close() error
}

// Pool is the opaque, per-address connection pool the Manager treats
// without looking inside. Only Close is invoked from the reconciler;
// Borrow is exercised by the embedder issuing operations.
type Pool interface {
	Borrow(ctx context.Context) (Connection, error)
	// Clear invalidates every connection currently checked in, and marks
	// outstanding checked-out connections for discard on return, without
	// stopping the pool itself. The TopologyManager never calls it.
	Clear()
	Close()
}

// ConnectOptions configures how a Pool dials new connections.
type ConnectOptions struct {
	Address        address.Address
	Database       string
	MaxPoolSize    int64
	ConnectTimeout time.Duration
}

// PoolFactory abstractly yields a connection pool handle per address. The
// Manager only ever calls Open (from reconciliation) and Close (from
// reconciliation or shutdown); it never reaches inside a Pool.
type PoolFactory interface {
	Open(ctx context.Context, opts ConnectOptions) (Pool, error)
}

// DialerPoolFactory is the default PoolFactory: a semaphore-bounded pool
// of plain TCP connections, with a generation counter bumped on Clear()
// so a future idle-connection cache has a correct generation to discard
// against.
type DialerPoolFactory struct {
	// Dial defaults to net.Dialer.DialContext against opts.Address when
	// nil.
	Dial func(ctx context.Context, addr address.Address) (net.Conn, error)
}

// Open implements PoolFactory.
func (f *DialerPoolFactory) Open(ctx context.Context, opts ConnectOptions) (Pool, error) {
	maxSize := opts.MaxPoolSize
	if maxSize <= 0 {
		maxSize = 100
	}

	dial := f.Dial
	if dial == nil {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
		dial = func(ctx context.Context, addr address.Address) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", string(addr))
		}
	}

	return &dialerPool{
		addr:    opts.Address,
		dial:    dial,
		permits: semaphore.NewWeighted(maxSize),
	}, nil
}

type dialerPool struct {
	addr address.Address
	dial func(ctx context.Context, addr address.Address) (net.Conn, error)

	permits *semaphore.Weighted

	mu     sync.Mutex
	gen    uint64
	closed bool
}

func (p *dialerPool) Borrow(ctx context.Context) (Connection, error) {
	p.mu.Lock()
	closed := p.closed
	gen := p.gen
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	if err := p.permits.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "acquiring pool permit")
	}

	conn, err := p.dial(ctx, p.addr)
	if err != nil {
		p.permits.Release(1)
		return nil, errors.Wrapf(err, "dialing %s", p.addr)
	}

	return &pooledConn{Conn: conn, pool: p, gen: gen}, nil
}

func (p *dialerPool) Clear() {
	p.mu.Lock()
	p.gen++
	p.mu.Unlock()
}

func (p *dialerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *dialerPool) release(gen uint64) {
	p.permits.Release(1)
	_ = gen
}

type pooledConn struct {
	net.Conn
	pool *dialerPool
	gen  uint64
}

func (c *pooledConn) Close() error {
	err := c.Conn.Close()
	c.pool.release(c.gen)
	return err
}
