package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsInOrder(t *testing.T) {
	d := NewSerial()
	defer d.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		i := i
		d.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callbacks never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPostFromCallbackNeverBlocks(t *testing.T) {
	d := NewSerial()
	defer d.Close()

	var mu sync.Mutex
	var ran int
	done := make(chan struct{})

	// A callback re-posting a burst larger than any plausible buffer
	// must not wedge the delivery goroutine.
	d.Post(func() {
		for i := 0; i < 200; i++ {
			d.Post(func() {
				mu.Lock()
				ran++
				mu.Unlock()
			})
		}
		d.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-posted callbacks never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 200, ran)
}

func TestPostAfterCloseIsNoOp(t *testing.T) {
	d := NewSerial()
	d.Close()

	d.Post(func() { t.Fatal("must not run") })
	time.Sleep(50 * time.Millisecond)
}
