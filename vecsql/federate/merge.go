package federate

import (
	"container/heap"

	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/plan"
)

// mergeRows combines per-shard row sequences (each already sorted by the
// plan's ordering key) into one globally ordered sequence via a k-way merge,
// deduplicates by record identifier (first occurrence in merge order wins),
// and applies the global offset and limit. Shard completion order has no
// influence: inputs are indexed by launch order and compared by key only.
func mergeRows(shards [][]exec.Row, order *plan.OrderBy, limit, offset int) []exec.Row {
	if order == nil {
		return trim(dedupeConcat(shards), limit, offset)
	}

	h := &mergeHeap{order: order}
	for i, rows := range shards {
		if len(rows) > 0 {
			h.items = append(h.items, mergeCursor{rows: rows, shard: i})
		}
	}
	heap.Init(h)

	want := -1
	if limit != plan.NoLimit {
		want = limit + offset
	}

	var out []exec.Row
	seen := make(map[string]bool)
	for h.Len() > 0 {
		cur := h.items[0]
		row := cur.rows[cur.next]
		if !seen[row.ID] {
			seen[row.ID] = true
			out = append(out, row)
			if want >= 0 && len(out) >= want {
				break
			}
		}
		if cur.next+1 < len(cur.rows) {
			h.items[0].next++
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return trim(out, limit, offset)
}

func dedupeConcat(shards [][]exec.Row) []exec.Row {
	var out []exec.Row
	seen := make(map[string]bool)
	for _, rows := range shards {
		for _, row := range rows {
			if !seen[row.ID] {
				seen[row.ID] = true
				out = append(out, row)
			}
		}
	}
	return out
}

func trim(rows []exec.Row, limit, offset int) []exec.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit != plan.NoLimit && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

type mergeCursor struct {
	rows  []exec.Row
	next  int
	shard int
}

type mergeHeap struct {
	items []mergeCursor
	order *plan.OrderBy
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	a := h.items[i].rows[h.items[i].next]
	b := h.items[j].rows[h.items[j].next]
	if exec.Less(a, b, h.order) {
		return true
	}
	if exec.Less(b, a, h.order) {
		return false
	}
	// Equal keys and identifiers across shards: launch order decides.
	return h.items[i].shard < h.items[j].shard
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(mergeCursor)) }

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
