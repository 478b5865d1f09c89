package par

import (
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWork(t *testing.T) {
	var w Work[int]

	const N = 10000
	n := int32(0)
	w.Add(N)
	w.Do(100, func(i int) {
		atomic.AddInt32(&n, 1)
		if i >= 2 {
			w.Add(i - 1)
			w.Add(i - 2)
		}
		w.Add(i >> 1)
		w.Add((i >> 1) ^ 1)
	})
	if n != N+1 {
		t.Fatalf("ran %d items, expected %d", n, N+1)
	}
}

func TestWorkParallel(t *testing.T) {
	for tries := 0; tries < 10; tries++ {
		var w Work[int]
		const N = 100
		for i := 0; i < N; i++ {
			w.Add(i)
		}
		start := time.Now()
		var n int32
		w.Do(N, func(x int) {
			time.Sleep(1 * time.Millisecond)
			atomic.AddInt32(&n, +1)
		})
		if n != N {
			t.Fatalf("par.Work.Do did not do all the work")
		}
		if time.Since(start) < N/2*time.Millisecond {
			return
		}
	}
	t.Fatalf("par.Work.Do does not seem to be parallel")
}

func TestWorkBound(t *testing.T) {
	var w Work[int]
	const N = 50
	for i := 0; i < N; i++ {
		w.Add(i)
	}
	var active, peak, n int32
	w.Do(3, func(int) {
		cur := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&n, 1)
	})
	if n != N {
		t.Fatalf("ran %d items, expected %d", n, N)
	}
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want at most 3", peak)
	}
}

func TestWorkPriority(t *testing.T) {
	w := Work[string]{
		Priority: func(s string) int { return len(s) },
	}
	for _, s := range []string{"ccc", "a", "dddd", "bb"} {
		w.Add(s)
	}
	var (
		mu  sync.Mutex
		got []string
	)
	w.Do(1, func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	if want := []string{"a", "bb", "ccc", "dddd"}; !slices.Equal(got, want) {
		t.Errorf("run order = %v, want %v", got, want)
	}
}

func TestWorkAtMostOnce(t *testing.T) {
	var w Work[int]
	w.Add(1)
	w.Add(1)
	if !w.Added(1) || w.Added(2) {
		t.Fatal("Added mismatch")
	}
	var n int32
	w.Do(4, func(i int) {
		atomic.AddInt32(&n, 1)
		w.Add(1)
	})
	if n != 1 {
		t.Errorf("item ran %d times", n)
	}
}

func TestWorkInsertionOrder(t *testing.T) {
	var w Work[int]
	for _, i := range []int{3, 1, 2} {
		w.Add(i)
	}
	var got []int
	w.Do(1, func(i int) {
		got = append(got, i)
		if i == 3 {
			w.Add(0)
		}
	})
	if want := []int{3, 1, 2, 0}; !slices.Equal(got, want) {
		t.Errorf("run order = %v, want %v", got, want)
	}
}

func TestWorkEmpty(t *testing.T) {
	var w Work[int]
	w.Do(2, func(int) { t.Error("f called on empty set") })
}
