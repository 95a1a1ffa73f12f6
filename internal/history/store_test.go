package history

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newStore(t *testing.T, accounts, shards int, window time.Duration) *Store {
	t.Helper()
	s, err := New(accounts, shards, window)
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	return s
}

func TestNewRejectsBadSizes(t *testing.T) {
	if _, err := New(0, 1, 0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("want ErrInvalidSize, got %v", err)
	}
	if _, err := New(5, 0, 0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("want ErrInvalidSize, got %v", err)
	}
	if _, err := New(5, 1, -time.Second); err == nil {
		t.Fatal("want error for negative window")
	}
}

func TestBumpReturnsPreviousCount(t *testing.T) {
	s := newStore(t, 3, 1, 0)
	now := time.Now()
	for want := int64(0); want < 4; want++ {
		prev, err := s.Bump(1, now)
		if err != nil {
			t.Fatal(err)
		}
		if prev != want {
			t.Fatalf("prev=%d want=%d", prev, want)
		}
	}
	if c, _ := s.Count(1); c != 4 {
		t.Fatalf("count=%d want=4", c)
	}
	if c, _ := s.Count(0); c != 0 {
		t.Fatalf("untouched account count=%d", c)
	}
}

func TestUnknownAccount(t *testing.T) {
	s := newStore(t, 3, 1, 0)
	for _, id := range []int{-1, 3, 100} {
		if _, err := s.Bump(id, time.Now()); !errors.Is(err, ErrUnknownAccount) {
			t.Fatalf("Bump(%d) want ErrUnknownAccount, got %v", id, err)
		}
		if _, err := s.Count(id); !errors.Is(err, ErrUnknownAccount) {
			t.Fatalf("Count(%d) want ErrUnknownAccount, got %v", id, err)
		}
	}
}

// TestConcurrentBumpsLoseNoUpdates 并发递增不丢失更新，且每个前值只出现一次
func TestConcurrentBumpsLoseNoUpdates(t *testing.T) {
	for _, shards := range []int{1, 2, 5} {
		s := newStore(t, 5, shards, 0)

		const goroutines = 8
		const perG = 500

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[[2]int64]bool)
		)
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < perG; i++ {
					id := (g + i) % 5
					prev, err := s.Bump(id, time.Now())
					if err != nil {
						t.Errorf("Bump err=%v", err)
						return
					}
					key := [2]int64{int64(id), prev}
					mu.Lock()
					if seen[key] {
						t.Errorf("account %d prev %d observed twice", id, prev)
					}
					seen[key] = true
					mu.Unlock()
				}
			}(g)
		}
		wg.Wait()

		if total := s.Total(); total != goroutines*perG {
			t.Fatalf("shards=%d total=%d want=%d", shards, total, goroutines*perG)
		}
		for _, e := range s.Snapshot() {
			if e.Count != goroutines*perG/5 {
				t.Fatalf("shards=%d account %d count=%d", shards, e.AccountID, e.Count)
			}
		}
		if s.Violations() != 0 {
			t.Fatalf("violations=%d", s.Violations())
		}
		states := s.LockStates()
		if len(states) != shards {
			t.Fatalf("lock states len=%d want=%d", len(states), shards)
		}
		for i, st := range states {
			if st != 0 {
				t.Fatalf("shard %d still held: %d", i, st)
			}
		}
	}
}

func TestSlidingWindow(t *testing.T) {
	s := newStore(t, 1, 1, 300*time.Second)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		offset time.Duration
		want   int64
	}{
		{0, 0},
		{100 * time.Second, 1},
		{200 * time.Second, 2},
		{400 * time.Second, 2}, // t0 已滑出窗口
		{1000 * time.Second, 0},
	}
	for _, c := range cases {
		prev, err := s.Bump(0, t0.Add(c.offset))
		if err != nil {
			t.Fatal(err)
		}
		if prev != c.want {
			t.Fatalf("offset=%s prev=%d want=%d", c.offset, prev, c.want)
		}
	}
	// 累计计数不受窗口影响
	if c, _ := s.Count(0); c != int64(len(cases)) {
		t.Fatalf("count=%d want=%d", c, len(cases))
	}
}

func TestSnapshotAndReset(t *testing.T) {
	s := newStore(t, 4, 2, 0)
	now := time.Now()
	_, _ = s.Bump(3, now)
	_, _ = s.Bump(3, now)
	_, _ = s.Bump(0, now)

	snap := s.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("snapshot len=%d", len(snap))
	}
	for i, e := range snap {
		if e.AccountID != i {
			t.Fatalf("snapshot not sorted: %+v", snap)
		}
	}
	if snap[3].Count != 2 || snap[0].Count != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}

	s.Reset()
	if s.Total() != 0 {
		t.Fatalf("total after reset=%d", s.Total())
	}
	if prev, _ := s.Bump(3, now); prev != 0 {
		t.Fatalf("prev after reset=%d", prev)
	}
}
