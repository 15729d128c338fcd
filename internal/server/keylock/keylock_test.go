package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	kl := New()

	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("file-1")
			defer kl.Unlock("file-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyLock_DistinctKeysDoNotBlock(t *testing.T) {
	kl := New()

	kl.Lock("file-a")
	done := make(chan struct{})
	go func() {
		kl.Lock("file-b")
		kl.Unlock("file-b")
		close(done)
	}()
	<-done // must not deadlock while file-a is held
	kl.Unlock("file-a")
}

func TestKeyLock_EntriesAreReleased(t *testing.T) {
	kl := New()

	kl.Lock("file-1")
	kl.Unlock("file-1")

	kl.mu.Lock()
	defer kl.mu.Unlock()
	assert.Empty(t, kl.locks, "released keys must not accumulate")
}

func TestKeyLock_UnlockUnheldPanics(t *testing.T) {
	kl := New()
	assert.Panics(t, func() { kl.Unlock("nope") })
}
