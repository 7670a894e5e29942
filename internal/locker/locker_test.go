package locker

import (
	"sync"
	"testing"
)

func TestSerializesSameKey(t *testing.T) {
	k := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("p1")
			counter++
			k.Unlock("p1")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestIndependentKeys(t *testing.T) {
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

func TestLockReusable(t *testing.T) {
	k := New()
	for i := 0; i < 3; i++ {
		k.Lock("p1")
		k.Unlock("p1")
	}
}
