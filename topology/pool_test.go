package topology

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpostlabs/sdamcore/address"
)

type fakeConn struct {
	net.Conn
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestDialerPoolFactory_Open_BoundsConcurrentBorrows(t *testing.T) {
	t.Parallel()

	factory := &DialerPoolFactory{
		Dial: func(ctx context.Context, addr address.Address) (net.Conn, error) {
			return &fakeConn{}, nil
		},
	}

	pool, err := factory.Open(context.Background(), ConnectOptions{
		Address:     "a:27017",
		MaxPoolSize: 1,
	})
	require.NoError(t, err)

	conn1, err := pool.Borrow(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Borrow(ctx)
	require.Error(t, err, "second borrow should block until the first is released")

	require.NoError(t, conn1.Close())

	conn2, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn2.Close())
}

func TestDialerPool_Borrow_AfterClose_Fails(t *testing.T) {
	t.Parallel()

	factory := &DialerPoolFactory{
		Dial: func(ctx context.Context, addr address.Address) (net.Conn, error) {
			return &fakeConn{}, nil
		},
	}
	pool, err := factory.Open(context.Background(), ConnectOptions{Address: "a:27017"})
	require.NoError(t, err)

	pool.Close()

	_, err = pool.Borrow(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestDialerPool_Clear_DoesNotBlockNewBorrows(t *testing.T) {
	t.Parallel()

	factory := &DialerPoolFactory{
		Dial: func(ctx context.Context, addr address.Address) (net.Conn, error) {
			return &fakeConn{}, nil
		},
	}
	pool, err := factory.Open(context.Background(), ConnectOptions{Address: "a:27017"})
	require.NoError(t, err)

	pool.Clear()

	conn, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestDialerPoolFactory_Open_DialFailure_ReleasesPermit(t *testing.T) {
	t.Parallel()

	calls := 0
	factory := &DialerPoolFactory{
		Dial: func(ctx context.Context, addr address.Address) (net.Conn, error) {
			calls++
			if calls == 1 {
				return nil, context.DeadlineExceeded
			}
			return &fakeConn{}, nil
		},
	}
	pool, err := factory.Open(context.Background(), ConnectOptions{Address: "a:27017", MaxPoolSize: 1})
	require.NoError(t, err)

	_, err = pool.Borrow(context.Background())
	require.Error(t, err)

	// The permit from the failed dial must have been released, or this
	// borrow would block forever.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Borrow(ctx)
	require.NoError(t, err)
}
