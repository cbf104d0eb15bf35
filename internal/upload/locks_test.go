package upload

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_ExclusiveExcludesShared(t *testing.T) {
	locks := newKeyedLocks()

	unlock := locks.Lock("a")
	var readers atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg.Done()
			release := locks.RLock("a")
			readers.Add(1)
			release()
		}()
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), readers.Load(), "readers must wait for the writer")

	// Other keys are independent
	other := locks.Lock("b")
	other()

	unlock()
	wg.Wait()
	assert.Equal(t, int32(3), readers.Load())
	assert.Equal(t, 0, locks.size(), "unused locks are freed")
}
