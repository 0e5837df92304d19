package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := New()
	var counter int

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("rec-1")
			counter++
			k.Unlock("rec-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyed_IndependentKeys(t *testing.T) {
	k := New()
	k.Lock("a")
	// A different key must not block.
	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()
	<-done
	k.Unlock("a")
}

func TestKeyed_EntriesReclaimed(t *testing.T) {
	k := New()
	k.Lock("x")
	k.Unlock("x")
	assert.Empty(t, k.locks)
}
