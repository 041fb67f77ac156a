package engine

import (
	"sync"
	"testing"
)

func TestShared_ConcurrentUpdate(t *testing.T) {
	s := NewShared(map[string]int{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(func(m *map[string]int) { (*m)["hits"]++ })
			}
		}()
	}
	wg.Wait()

	var got int
	s.Read(func(m map[string]int) { got = m["hits"] })
	if got != 800 {
		t.Errorf("hits = %d, want 800", got)
	}
}

func TestShared_Load(t *testing.T) {
	s := NewShared(3)
	s.Update(func(v *int) { *v *= 2 })
	if got := s.Load(); got != 6 {
		t.Errorf("Load = %d", got)
	}
}
