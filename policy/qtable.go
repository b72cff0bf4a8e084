package policy

import (
	"container/list"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Row holds one value estimate per action
type Row [NumActions]float64

// Best returns the highest-valued action, the lowest index on ties
func (r Row) Best() Action {
	return Action(floats.MaxIdx(r[:]))
}

// Max returns the highest value in the row
func (r Row) Max() float64 {
	return floats.Max(r[:])
}

type qEntry struct {
	key  StateKey
	row  Row
	elem *list.Element
}

// QTable maps state keys to rows, creating zero rows on first access. With
// a positive capacity the least recently used state is evicted when a new
// one would exceed it.
type QTable struct {
	mu        sync.Mutex
	entries   map[StateKey]*qEntry
	lru       *list.List // front is most recently used
	capacity  int
	evictions uint64
}

// NewQTable creates an empty table. capacity 0 means unbounded; a bounded
// table holds at least two states so an update never evicts its own row.
func NewQTable(capacity int) *QTable {
	switch {
	case capacity < 0:
		capacity = 0
	case capacity == 1:
		capacity = 2
	}
	return &QTable{
		entries:  make(map[StateKey]*qEntry),
		lru:      list.New(),
		capacity: capacity,
	}
}

// getOrInsert must be called with mu held
func (q *QTable) getOrInsert(key StateKey) *qEntry {
	if e, ok := q.entries[key]; ok {
		q.lru.MoveToFront(e.elem)
		return e
	}

	if q.capacity > 0 && len(q.entries) >= q.capacity {
		oldest := q.lru.Back()
		victim := oldest.Value.(*qEntry)
		q.lru.Remove(oldest)
		delete(q.entries, victim.key)
		q.evictions++
	}

	e := &qEntry{key: key}
	e.elem = q.lru.PushFront(e)
	q.entries[key] = e
	return e
}

// Row returns the row for key, inserting a zero row if absent
func (q *QTable) Row(key StateKey) Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getOrInsert(key).row
}

// Lookup returns the row for key without inserting or touching recency
func (q *QTable) Lookup(key StateKey) (Row, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok {
		return Row{}, false
	}
	return e.row, true
}

// Update applies the temporal-difference rule
//
//	Q[s][a] += alpha * (reward + gamma * max(Q[next]) - Q[s][a])
//
// creating both rows if needed, and returns the old and new values
func (q *QTable) Update(s StateKey, a Action, reward float64, next StateKey, alpha, gamma float64) (oldQ, newQ float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	se := q.getOrInsert(s)
	ne := q.getOrInsert(next)

	oldQ = se.row[a]
	newQ = oldQ + alpha*(reward+gamma*ne.row.Max()-oldQ)
	se.row[a] = newQ
	return oldQ, newQ
}

// Len returns the number of states in the table
func (q *QTable) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Evictions returns how many states the LRU bound has dropped
func (q *QTable) Evictions() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evictions
}

// Snapshot copies every row
func (q *QTable) Snapshot() map[StateKey]Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[StateKey]Row, len(q.entries))
	for k, e := range q.entries {
		out[k] = e.row
	}
	return out
}

// Load replaces the table contents with rows. With a capacity set, only
// as many rows as fit are kept, in unspecified order.
func (q *QTable) Load(rows map[StateKey]Row) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = make(map[StateKey]*qEntry, len(rows))
	q.lru.Init()
	for k, r := range rows {
		q.getOrInsert(k).row = r
	}
}
