// Package queue provides the crawl frontier used by a single crawl job.
package queue

import (
	"errors"
	"time"
)

// ErrQueueEmpty is returned by Pop on an empty frontier.
var ErrQueueEmpty = errors.New("queue is empty")

// Item is one pending (url, depth) entry.
type Item struct {
	URL       string
	Canonical string // dedup key; defaults to URL
	Depth     int
	ParentURL string
	Timestamp time.Time
}

// Frontier is a FIFO queue of pending URLs for one crawl job. Entries are
// dequeued in insertion order, which gives breadth-first traversal when
// depth d+1 entries are only added while processing depth d.
//
// A Frontier is owned by one job and is not safe for concurrent use.
type Frontier struct {
	items    []*Item
	head     int
	enqueued map[string]struct{}
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{enqueued: make(map[string]struct{})}
}

// Push appends item unless its canonical form was pushed before.
// It reports whether the item was added.
func (f *Frontier) Push(item *Item) bool {
	key := item.Canonical
	if key == "" {
		key = item.URL
		item.Canonical = key
	}
	if _, ok := f.enqueued[key]; ok {
		return false
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	f.enqueued[key] = struct{}{}
	f.items = append(f.items, item)
	return true
}

// Pop removes and returns the oldest item.
func (f *Frontier) Pop() (*Item, error) {
	if f.head >= len(f.items) {
		return nil, ErrQueueEmpty
	}
	item := f.items[f.head]
	f.items[f.head] = nil
	f.head++

	// compact once the consumed prefix dominates the slice
	if f.head > 64 && f.head*2 >= len(f.items) {
		f.items = append([]*Item(nil), f.items[f.head:]...)
		f.head = 0
	}
	return item, nil
}

// Len returns the number of pending items.
func (f *Frontier) Len() int {
	return len(f.items) - f.head
}
