package token

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSequencer_StartsAtOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	seq, err := NewSequencer(path, fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("NewSequencer() error: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := seq.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if got != want {
			t.Fatalf("expected token %d, got %d", want, got)
		}
	}
}

func TestSequencer_ResetsOnDayChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	day := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return day
	}

	seq, err := NewSequencer(path, now)
	if err != nil {
		t.Fatalf("NewSequencer() error: %v", err)
	}

	if tok, _ := seq.Next(); tok != 1 {
		t.Fatalf("expected first token 1, got %d", tok)
	}
	if tok, _ := seq.Next(); tok != 2 {
		t.Fatalf("expected second token 2, got %d", tok)
	}

	// Midnight rollover
	mu.Lock()
	day = day.Add(2 * time.Hour)
	mu.Unlock()

	if tok, _ := seq.Next(); tok != 1 {
		t.Fatalf("expected counter reset to 1 after day change, got %d", tok)
	}
	if got := seq.Current(); got != 1 {
		t.Fatalf("expected Current() 1, got %d", got)
	}
}

func TestSequencer_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	clock := fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))

	seq1, err := NewSequencer(path, clock)
	if err != nil {
		t.Fatalf("NewSequencer() error: %v", err)
	}
	seq1.Next()
	seq1.Next()

	seq2, err := NewSequencer(path, clock)
	if err != nil {
		t.Fatalf("NewSequencer() reopen error: %v", err)
	}
	if tok, _ := seq2.Next(); tok != 3 {
		t.Fatalf("expected token 3 after restart, got %d", tok)
	}
}

func TestSequencer_CurrentBeforeAnyIssue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	seq, err := NewSequencer(path, nil)
	if err != nil {
		t.Fatalf("NewSequencer() error: %v", err)
	}
	if got := seq.Current(); got != 0 {
		t.Fatalf("expected 0 before any issue, got %d", got)
	}
}

func TestSequencer_ConcurrentIssueIsUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	seq, err := NewSequencer(path, fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("NewSequencer() error: %v", err)
	}

	const n = 20
	results := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := seq.Next()
			if err != nil {
				t.Errorf("Next() error: %v", err)
				return
			}
			results <- tok
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for tok := range results {
		if seen[tok] {
			t.Fatalf("duplicate token issued: %d", tok)
		}
		seen[tok] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique tokens, got %d", n, len(seen))
	}
}
