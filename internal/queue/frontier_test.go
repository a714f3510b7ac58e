package queue

import (
	"fmt"
	"testing"
)

// =============================================================================
// Frontier Tests
// =============================================================================

func TestFrontier_FIFO(t *testing.T) {
	f := NewFrontier()
	f.Push(&Item{URL: "https://example.com/", Depth: 0})
	f.Push(&Item{URL: "https://example.com/a", Depth: 1})
	f.Push(&Item{URL: "https://example.com/b", Depth: 1})

	want := []string{"https://example.com/", "https://example.com/a", "https://example.com/b"}
	for _, w := range want {
		item, err := f.Pop()
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if item.URL != w {
			t.Errorf("Pop() = %s, want %s", item.URL, w)
		}
	}

	if _, err := f.Pop(); err != ErrQueueEmpty {
		t.Errorf("Pop() on empty error = %v, want ErrQueueEmpty", err)
	}
}

func TestFrontier_Dedup(t *testing.T) {
	tests := []struct {
		name   string
		items  []*Item
		wantN  int
		wantOK []bool
	}{
		{
			name: "same url twice",
			items: []*Item{
				{URL: "https://example.com/a"},
				{URL: "https://example.com/a"},
			},
			wantN:  1,
			wantOK: []bool{true, false},
		},
		{
			name: "same canonical different raw",
			items: []*Item{
				{URL: "https://example.com/a?x=1", Canonical: "https://example.com/a"},
				{URL: "https://example.com/a?x=2", Canonical: "https://example.com/a"},
			},
			wantN:  1,
			wantOK: []bool{true, false},
		},
		{
			name: "distinct",
			items: []*Item{
				{URL: "https://example.com/a"},
				{URL: "https://example.com/b"},
			},
			wantN:  2,
			wantOK: []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrontier()
			for i, item := range tt.items {
				if got := f.Push(item); got != tt.wantOK[i] {
					t.Errorf("Push(%d) = %v, want %v", i, got, tt.wantOK[i])
				}
			}
			if f.Len() != tt.wantN {
				t.Errorf("Len() = %d, want %d", f.Len(), tt.wantN)
			}
		})
	}
}

func TestFrontier_PoppedStaysDeduped(t *testing.T) {
	f := NewFrontier()
	f.Push(&Item{URL: "https://example.com/"})
	f.Pop()

	if f.Push(&Item{URL: "https://example.com/"}) {
		t.Error("Push() after Pop() should still reject the same URL")
	}
}

func TestFrontier_Compaction(t *testing.T) {
	f := NewFrontier()
	for i := 0; i < 500; i++ {
		f.Push(&Item{URL: fmt.Sprintf("https://example.com/%d", i), Depth: i % 3})
	}

	for i := 0; i < 450; i++ {
		item, err := f.Pop()
		if err != nil {
			t.Fatalf("Pop(%d) error = %v", i, err)
		}
		if want := fmt.Sprintf("https://example.com/%d", i); item.URL != want {
			t.Fatalf("Pop(%d) = %s, want %s", i, item.URL, want)
		}
	}

	if f.Len() != 50 {
		t.Errorf("Len() = %d, want 50", f.Len())
	}
	item, err := f.Pop()
	if err != nil || item.URL != "https://example.com/450" {
		t.Errorf("Pop() after compaction = %v, %v", item, err)
	}
}
