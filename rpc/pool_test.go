package rpc

import (
	"sync/atomic"
	"testing"
)

func TestWorkPoolSubmitBlocksUntilDone(t *testing.T) {
	pool := newWorkPool(2)
	var ran atomic.Bool
	pool.submit(func() { ran.Store(true) })

	if !ran.Load() {
		t.Error("submit should not return until the job has run")
	}
}

func TestWorkPoolRunsManyJobsConcurrently(t *testing.T) {
	pool := newWorkPool(4)
	var counter atomic.Int64

	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		go func() {
			pool.submit(func() { counter.Add(1) })
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	if got := counter.Load(); got != 20 {
		t.Errorf("counter = %d, want 20", got)
	}
}

func TestNewWorkPoolDefaultsWorkersWhenNonPositive(t *testing.T) {
	pool := newWorkPool(0)
	var ran atomic.Bool
	pool.submit(func() { ran.Store(true) })
	if !ran.Load() {
		t.Error("pool constructed with 0 workers should still default to a usable worker count")
	}
}
