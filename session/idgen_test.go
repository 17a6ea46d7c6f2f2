package session

import (
	"sync"
	"testing"
)

func TestIDGeneratorNeverReturnsZero(t *testing.T) {
	g := NewIDGeneratorAt(65530)
	for i := 0; i < 20; i++ {
		if id := g.Next(); id == 0 {
			t.Fatalf("call %d returned reserved identifier 0", i)
		}
	}
}

func TestIDGeneratorDistinctUntilWrap(t *testing.T) {
	g := NewIDGenerator()
	seen := make(map[uint16]struct{}, 65535)
	for i := 0; i < 65535; i++ {
		id := g.Next()
		if id == 0 {
			t.Fatalf("call %d returned 0", i)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("identifier %d repeated after %d calls", id, i)
		}
		seen[id] = struct{}{}
	}

	if first := g.Next(); first != 1 {
		t.Fatalf("expected sequence to wrap back to 1, got %d", first)
	}
}

func TestIDGeneratorWrapSkipsZero(t *testing.T) {
	g := NewIDGeneratorAt(65535)
	if got := g.Next(); got != 65535 {
		t.Fatalf("expected 65535, got %d", got)
	}
	if got := g.Next(); got != 1 {
		t.Fatalf("expected wrap to 1, got %d", got)
	}
}

func TestIDGeneratorZeroStartCoercedToOne(t *testing.T) {
	g := NewIDGeneratorAt(0)
	if got := g.Peek(); got != 1 {
		t.Fatalf("expected peek 1, got %d", got)
	}
	if got := g.Next(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	var zero IDGenerator
	if got := zero.Next(); got != 1 {
		t.Fatalf("zero value generator expected 1, got %d", got)
	}
	if got := zero.Next(); got != 2 {
		t.Fatalf("zero value generator expected 2, got %d", got)
	}
}

func TestIDGeneratorConcurrentDistinct(t *testing.T) {
	g := NewIDGenerator()

	const workers = 16
	const perWorker = 2000

	results := make([][]uint16, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			ids := make([]uint16, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, g.Next())
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	seen := make(map[uint16]struct{}, workers*perWorker)
	for _, ids := range results {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("identifier %d handed out twice", id)
			}
			seen[id] = struct{}{}
		}
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d identifiers, got %d", workers*perWorker, len(seen))
	}
}
