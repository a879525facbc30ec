package inflight

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestClaimAndRelease(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	assert.True(t, r.TryClaim("m1"))
	assert.False(t, r.TryClaim("m1"))
	assert.True(t, r.TryClaim("m2"))
	assert.Equal(t, 2, r.Size())

	r.Release("m1")
	assert.Equal(t, 1, r.Size())
	assert.True(t, r.TryClaim("m1"))
}

func TestReleaseUnclaimedIsNoop(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Release("never-claimed")
	assert.Zero(t, r.Size())
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	const goroutines = 50
	var winners int64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryClaim("m1") {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners)
	assert.Equal(t, 1, r.Size())
}

func TestIndependentIDsDoNotContend(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("m%d", n)
			assert.True(t, r.TryClaim(id))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, r.Size())
}
