package app

import (
	"context"
	"fmt"
	"time"

	"codex-pipeline/internal/domain"
)

// Ceiling on any single tile enqueue/dequeue. A producer or consumer blocked
// past this is treated as a stuck I/O or stalled peer and fails the task.
const tileQueueTimeout = 1 * time.Hour

// tileItem is one loaded tile with its 0-based (region, tile) provenance.
type tileItem struct {
	Tile        *domain.Tile
	RegionIndex int
	TileIndex   int
}

// TileQueue is the bounded FIFO between a task's tile loader and its
// processing loop. Capacity equals the task's prefetch capacity; with
// capacity 1 the next tile loads while the current one is processed.
type TileQueue struct {
	items   chan tileItem
	timeout time.Duration
}

// NewTileQueue builds a queue with the given capacity and the fixed
// operation timeout.
func NewTileQueue(capacity int) *TileQueue {
	return &TileQueue{
		items:   make(chan tileItem, capacity),
		timeout: tileQueueTimeout,
	}
}

// Put enqueues a tile, blocking while the queue is full. Blocking past the
// timeout fails with ErrQueueTimeout.
func (q *TileQueue) Put(ctx context.Context, item tileItem) error {
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case q.items <- item:
		return nil
	case <-timer.C:
		return fmt.Errorf("enqueue of tile %d for region %d blocked for %s: %w",
			item.TileIndex+1, item.RegionIndex+1, q.timeout, domain.ErrQueueTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next tile, blocking while the queue is empty. Blocking
// past the timeout fails with ErrQueueTimeout.
func (q *TileQueue) Get(ctx context.Context) (tileItem, error) {
	// Drain already-prefetched tiles before observing cancellation, so a
	// producer failure never discards tiles it enqueued beforehand.
	select {
	case item := <-q.items:
		return item, nil
	default:
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return item, nil
	case <-timer.C:
		return tileItem{}, fmt.Errorf("dequeue blocked for %s: %w", q.timeout, domain.ErrQueueTimeout)
	case <-ctx.Done():
		return tileItem{}, ctx.Err()
	}
}
