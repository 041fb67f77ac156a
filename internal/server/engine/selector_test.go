package engine

import (
	"net"
	"testing"
)

func testWorkers(n int) []*Worker {
	ws := make([]*Worker, n)
	for i := range ws {
		ws[i] = &Worker{id: i}
	}
	return ws
}

func TestRoundRobin(t *testing.T) {
	ws := testWorkers(3)
	sel, err := newSelector(SelectRoundRobin)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		if got := sel.start(ws, nil); got != i%3 {
			t.Errorf("pick %d = %d, want %d", i, got, i%3)
		}
	}
}

func TestLeastConn(t *testing.T) {
	ws := testWorkers(3)
	ws[0].admitted.Store(4)
	ws[1].admitted.Store(1)
	ws[2].admitted.Store(2)
	if got := (leastConn{}).start(ws, nil); got != 1 {
		t.Errorf("leastConn = %d, want 1", got)
	}
}

func TestIPHash_Sticky(t *testing.T) {
	ws := testWorkers(4)
	a := &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 1000}
	b := &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 2000}
	first := (ipHash{}).start(ws, a)
	if got := (ipHash{}).start(ws, b); got != first {
		t.Errorf("same IP mapped to %d and %d", first, got)
	}
	if first < 0 || first >= len(ws) {
		t.Errorf("index %d out of range", first)
	}
}

func TestNewSelector_Unknown(t *testing.T) {
	if _, err := newSelector("random"); err == nil {
		t.Error("unknown selection accepted")
	}
}

func TestPool_TryAdmitSkipsFullWorkers(t *testing.T) {
	ws := testWorkers(2)
	p := newPool(ws, &roundRobin{}, 1)
	first := p.tryAdmit(nil, nil)
	second := p.tryAdmit(nil, nil)
	if first == nil || second == nil || first == second {
		t.Fatalf("admitted to %v and %v", first, second)
	}
	if w := p.tryAdmit(nil, nil); w != nil {
		t.Fatalf("admitted to full worker %d", w.id)
	}
	first.releaseAdmission()
	if w := p.tryAdmit(nil, nil); w != first {
		t.Fatalf("expected freed worker %d, got %v", first.id, w)
	}
	if w := p.tryAdmit(nil, second); w != nil {
		t.Fatal("pinned admission ignored capacity")
	}
}
