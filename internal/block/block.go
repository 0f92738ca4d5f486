// Package block groups deduplicated queue rows into bounded work units and
// decides when a cycle has enough pending work to dispatch.
package block

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chunkq/internal/queue"
)

// EncodeFunc serializes a block's rows into the payload handed to a worker.
type EncodeFunc func(rows []queue.Row) ([]byte, error)

// Block is a contiguous run of rows compiled together.
type Block struct {
	ID      string
	Items   []queue.Row
	Payload []byte
}

// MinID returns the smallest row id in the block.
func (b Block) MinID() int64 {
	if len(b.Items) == 0 {
		return 0
	}
	return b.Items[0].ID
}

// MaxID returns the largest row id in the block.
func (b Block) MaxID() int64 {
	if len(b.Items) == 0 {
		return 0
	}
	return b.Items[len(b.Items)-1].ID
}

// IDs returns the row ids in block order.
func (b Block) IDs() []int64 {
	ids := make([]int64, len(b.Items))
	for i, row := range b.Items {
		ids[i] = row.ID
	}
	return ids
}

// ErrInvalidSize is returned when maxItems is not positive.
var ErrInvalidSize = errors.New("block size must be positive")

// Assemble splits rows into consecutive blocks of at most maxItems rows.
// Row order is preserved and every row lands in exactly one block.
func Assemble(rows []queue.Row, maxItems int, encode EncodeFunc) ([]Block, error) {
	return AssembleIsolating(rows, maxItems, nil, encode)
}

// AssembleIsolating behaves like Assemble but gives every row for which
// isolate returns true a block of its own, so one bad row cannot fail the
// rows around it.
func AssembleIsolating(rows []queue.Row, maxItems int, isolate func(queue.Row) bool, encode EncodeFunc) ([]Block, error) {
	if maxItems <= 0 {
		return nil, ErrInvalidSize
	}
	if len(rows) == 0 {
		return nil, nil
	}
	blocks := make([]Block, 0, (len(rows)+maxItems-1)/maxItems)
	appendBlock := func(items []queue.Row) error {
		blk := Block{ID: uuid.NewString(), Items: items}
		if encode != nil {
			payload, err := encode(items)
			if err != nil {
				return fmt.Errorf("encode block %d-%d: %w", items[0].ID, items[len(items)-1].ID, err)
			}
			blk.Payload = payload
		}
		blocks = append(blocks, blk)
		return nil
	}

	start := 0
	for i, row := range rows {
		if isolate == nil || !isolate(row) {
			if i+1-start == maxItems {
				if err := appendBlock(rows[start : i+1 : i+1]); err != nil {
					return nil, err
				}
				start = i + 1
			}
			continue
		}
		if start < i {
			if err := appendBlock(rows[start:i:i]); err != nil {
				return nil, err
			}
		}
		if err := appendBlock(rows[i : i+1 : i+1]); err != nil {
			return nil, err
		}
		start = i + 1
	}
	if start < len(rows) {
		if err := appendBlock(rows[start:len(rows):len(rows)]); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// Full counts blocks that reached maxItems rows.
func Full(blocks []Block, maxItems int) int {
	count := 0
	for _, b := range blocks {
		if len(b.Items) >= maxItems {
			count++
		}
	}
	return count
}

// Gate holds back dispatch of small batches.
type Gate struct {
	// MinItems is the number of pending rows that allows dispatch right away.
	MinItems int
	// Period is how long the oldest row may wait before a smaller batch is
	// flushed anyway.
	Period time.Duration
}

// Ready reports whether pending rows, the oldest queued at oldest, should be
// dispatched at now.
func (g Gate) Ready(pending int, oldest, now time.Time) bool {
	if pending <= 0 {
		return false
	}
	if pending >= g.MinItems {
		return true
	}
	if oldest.IsZero() {
		return true
	}
	return now.Sub(oldest) >= g.Period
}
