package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHooks_ReverseOrder(t *testing.T) {
	h := NewHooks(5 * time.Second)

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		h.OnShutdown(func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("hooks called in order %v, want [3 2 1]", order)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Run")
	}
}

func TestHooks_CombinesErrors(t *testing.T) {
	h := NewHooks(time.Second)
	errA := errors.New("metrics listener")
	errB := errors.New("control socket")
	h.OnShutdown(func(context.Context) error { return errA })
	h.OnShutdown(func(context.Context) error { return nil })
	h.OnShutdown(func(context.Context) error { return errB })

	err := h.Run()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Run() = %v, want both errors", err)
	}
	if again := h.Run(); again != err {
		t.Errorf("second Run() = %v, want first result", again)
	}
}

func TestHooks_DeadlineReachesHooks(t *testing.T) {
	h := NewHooks(50 * time.Millisecond)
	h.OnShutdown(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := h.Run(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v", err)
	}
}
