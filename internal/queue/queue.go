// Package queue implements the temperature-bucketed scheduling queue
// (spec.md §4.4): a round-robin cycle iterator over a burning bucket and
// K ordered temperature buckets that picks exactly one tile per engine
// cycle, plus the Zipf/harmonic bucket-sizing redistribution that runs
// once per completed pass.
package queue

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/pixelhawk/hawk/internal/store"
)

// ErrEmpty is returned by Next when no tile is currently eligible for
// selection (no active tiles at all); the caller (the Engine) waits one
// cycle, per spec.md §4.4 "Suspension and failure".
var ErrEmpty = errors.New("queue: empty")

// Queue is a stateful round-robin iterator over the Store's heat
// buckets. It holds no tile data itself — every selection and
// redistribution call goes through Store — only the cursor position and
// the since-last-redistribution visited set.
type Queue struct {
	store *store.Store

	lastHeat int // heat bucket visited on the previous call, -1 if none yet
	visited  map[int]bool
}

// New constructs a Queue over the given Store.
func New(s *store.Store) *Queue {
	return &Queue{store: s, lastHeat: -1, visited: make(map[int]bool)}
}

// Next selects the single next tile to poll, advancing the round-robin
// cursor and running bucket redistribution if this selection completes
// a full pass over all currently non-empty buckets. It returns ErrEmpty
// if there are no active tiles.
func (q *Queue) Next(ctx context.Context) (*store.Tile, error) {
	counts, err := q.store.HeatCounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, ErrEmpty
	}

	order := bucketOrder(counts)
	nextHeat := advance(order, q.lastHeat)

	tile, err := q.store.QueueScan(ctx, nextHeat)
	if err != nil {
		return nil, err
	}

	q.lastHeat = nextHeat
	q.visited[nextHeat] = true

	if passComplete(order, q.visited) {
		if err := q.redistribute(ctx); err != nil {
			return tile, err
		}
		q.visited = make(map[int]bool)
	}

	return tile, nil
}

// bucketOrder returns the visiting order for the buckets currently
// non-empty per counts: burning first (if present), then ascending
// temperature buckets.
func bucketOrder(counts map[int]int) []int {
	order := make([]int, 0, len(counts))
	burning := false
	temps := make([]int, 0, len(counts))
	for heat := range counts {
		if heat == store.BurningHeat {
			burning = true
			continue
		}
		temps = append(temps, heat)
	}
	sort.Ints(temps)
	if burning {
		order = append(order, store.BurningHeat)
	}
	order = append(order, temps...)
	return order
}

// advance returns the bucket that follows lastHeat in order, wrapping
// around; if lastHeat is absent from order (first call, or its bucket
// emptied out), it restarts at the front of order.
func advance(order []int, lastHeat int) int {
	if len(order) == 0 {
		return order[0] // unreachable: caller guards len(counts) == 0
	}
	for i, heat := range order {
		if heat == lastHeat {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

// passComplete reports whether every bucket in order has been visited
// since the last redistribution.
func passComplete(order []int, visited map[int]bool) bool {
	for _, heat := range order {
		if !visited[heat] {
			return false
		}
	}
	return true
}

// redistribute recomputes heat assignments for all non-burning,
// non-inactive tiles from their last_update ordering, writing back only
// the tiles whose computed heat actually changed (spec.md §4.4
// "Redistribution policy").
func (q *Queue) redistribute(ctx context.Context) error {
	tiles, err := q.store.ActiveTilesByLastUpdateDesc(ctx)
	if err != nil {
		return err
	}
	sizes := computeBucketSizes(len(tiles))
	updates := make(map[int64]int)

	offset := 0
	for bucketIdx, size := range sizes {
		heat := bucketIdx + 1
		for i := offset; i < offset+size && i < len(tiles); i++ {
			if tiles[i].Heat != heat {
				updates[tiles[i].ID] = heat
			}
		}
		offset += size
	}

	return q.store.SetTileHeats(ctx, updates)
}

// computeBucketSizes implements spec.md §4.4 "Sizing": K is chosen
// dynamically so the hottest bucket holds at least 5 tiles unless only
// one temperature bucket is feasible (n < 5, or no larger K satisfies
// the floor), and bucket i's share is proportional to 1/i (harmonic).
// Rounding drift is absorbed by the coldest bucket so sizes always sum
// to n exactly.
func computeBucketSizes(n int) []int {
	if n <= 0 {
		return nil
	}
	if n < 5 {
		return []int{n}
	}

	const maxK = 12
	var chosen []int
	for k := maxK; k >= 1; k-- {
		h := harmonic(k)
		sizes := make([]int, k)
		total := 0
		for i := 1; i <= k; i++ {
			weight := (1.0 / float64(i)) / h
			sizes[i-1] = int(math.Round(weight * float64(n)))
			total += sizes[i-1]
		}
		sizes[k-1] += n - total // absorb rounding drift into the coldest bucket
		if sizes[k-1] < 0 {
			sizes[k-1] = 0
			sizes[0] += n - sum(sizes)
		}
		if sizes[0] >= 5 {
			chosen = sizes
			break
		}
	}
	if chosen == nil {
		chosen = []int{n}
	}
	return chosen
}

func harmonic(k int) float64 {
	var h float64
	for i := 1; i <= k; i++ {
		h += 1.0 / float64(i)
	}
	return h
}

func sum(xs []int) int {
	t := 0
	for _, x := range xs {
		t += x
	}
	return t
}
