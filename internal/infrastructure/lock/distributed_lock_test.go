package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderMutualExclusion(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(ctx, DepositKey("u-1"), "req")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalProviderRespectsContext(t *testing.T) {
	p := NewLocalProvider()
	release, err := p.Acquire(context.Background(), "k", "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "k", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalProviderIndependentKeys(t *testing.T) {
	p := NewLocalProvider()
	r1, err := p.Acquire(context.Background(), DepositKey("a"), "x")
	require.NoError(t, err)
	r2, err := p.Acquire(context.Background(), DepositKey("b"), "y")
	require.NoError(t, err)
	r1()
	r2()
	r2()
}
