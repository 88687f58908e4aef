package flight

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_RejectsDuplicateKey(t *testing.T) {
	g := NewGuard()

	release, err := g.Acquire("checkout:u1")
	require.NoError(t, err)

	_, err = g.Acquire("checkout:u1")
	var inFlight *InFlightError
	require.ErrorAs(t, err, &inFlight)
	assert.Equal(t, "checkout:u1", inFlight.Key)

	release()
	_, err = g.Acquire("checkout:u1")
	assert.NoError(t, err)
}

func TestGuard_KeysAreIndependent(t *testing.T) {
	g := NewGuard()

	_, err := g.Acquire("checkout:u1")
	require.NoError(t, err)

	// A different shopper, and a different operation class, both proceed.
	_, err = g.Acquire("checkout:u2")
	assert.NoError(t, err)
	_, err = g.Acquire("order:SO-000001")
	assert.NoError(t, err)
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	g := NewGuard()

	release, err := g.Acquire("order:SO-000001")
	require.NoError(t, err)
	release()
	release()

	// The double release must not free a token someone else now holds.
	release2, err := g.Acquire("order:SO-000001")
	require.NoError(t, err)
	release()
	_, err = g.Acquire("order:SO-000001")
	var inFlight *InFlightError
	require.ErrorAs(t, err, &inFlight)
	release2()
}

func TestGuard_ConcurrentAcquire(t *testing.T) {
	g := NewGuard()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire("order:SO-000042"); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}
