package matchmaking

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one waiting connection in the queue. PlayerID is nil for guests.
type Entry struct {
	ConnID     uuid.UUID
	PlayerID   *uuid.UUID
	GameType   string
	StakeTier  int
	EnqueuedAt time.Time
}

// bucketKey partitions the queue: players are only ever paired with others
// waiting for the same game type at the same stake.
type bucketKey struct {
	GameType  string
	StakeTier int
}

// OnMatchFunc receives a freshly allocated session ID and the two paired
// entries, oldest first. It is invoked outside the queue lock.
type OnMatchFunc func(sessionID uuid.UUID, a, b Entry)

// Queue pairs waiting players of identical (gameType, stakeTier) strictly in
// arrival order. Membership is volatile: a restart forgets everyone waiting,
// which is acceptable since re-enqueueing is cheap and client-visible as
// "still searching".
type Queue struct {
	mu      sync.Mutex
	buckets map[bucketKey][]*Entry
	index   map[uuid.UUID]bucketKey // connID -> bucket currently holding it

	// OnMatch is called for every pair formed. Set before first Enqueue.
	OnMatch OnMatchFunc
}

// NewQueue returns an empty matchmaking queue.
func NewQueue() *Queue {
	return &Queue{
		buckets: make(map[bucketKey][]*Entry),
		index:   make(map[uuid.UUID]bucketKey),
	}
}

// Enqueue appends the connection to the tail of its (gameType, stakeTier)
// bucket and greedily pairs the bucket. A connection may occupy at most one
// queue slot system-wide: a second Enqueue while already waiting anywhere is
// a silent no-op and returns false.
func (q *Queue) Enqueue(connID uuid.UUID, playerID *uuid.UUID, gameType string, stakeTier int) bool {
	q.mu.Lock()

	if _, queued := q.index[connID]; queued {
		q.mu.Unlock()
		log.Printf("matchmaking: connection %s already queued, ignoring enqueue", connID)
		return false
	}

	key := bucketKey{GameType: gameType, StakeTier: stakeTier}
	entry := &Entry{
		ConnID:     connID,
		PlayerID:   playerID,
		GameType:   gameType,
		StakeTier:  stakeTier,
		EnqueuedAt: time.Now(),
	}
	q.buckets[key] = append(q.buckets[key], entry)
	q.index[connID] = key

	pairs := q.drainPairsUnsafe(key)
	onMatch := q.OnMatch
	q.mu.Unlock()

	// Fire match callbacks outside the lock: the handler will create a
	// session, write to the room directory and notify both connections.
	if onMatch != nil {
		for _, p := range pairs {
			onMatch(uuid.New(), *p[0], *p[1])
		}
	}
	return true
}

// drainPairsUnsafe pops pairs off the head of the bucket while at least two
// entries remain. FIFO by arrival, no skill matching, never holds entries
// back for a better pairing. Assumes the lock is held.
func (q *Queue) drainPairsUnsafe(key bucketKey) [][2]*Entry {
	var pairs [][2]*Entry
	for len(q.buckets[key]) >= 2 {
		a, b := q.buckets[key][0], q.buckets[key][1]
		q.buckets[key] = q.buckets[key][2:]
		delete(q.index, a.ConnID)
		delete(q.index, b.ConnID)
		pairs = append(pairs, [2]*Entry{a, b})
	}
	if len(q.buckets[key]) == 0 {
		delete(q.buckets, key)
	}
	return pairs
}

// Dequeue removes the connection from whichever bucket holds it. Removing a
// connection that is not queued is a silent no-op; callers invoke this on
// both explicit leave_queue and transport disconnect.
func (q *Queue) Dequeue(connID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok := q.index[connID]
	if !ok {
		return
	}
	delete(q.index, connID)

	entries := q.buckets[key]
	for i, e := range entries {
		if e.ConnID == connID {
			q.buckets[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(q.buckets[key]) == 0 {
		delete(q.buckets, key)
	}
}

// Contains reports whether the connection currently holds a queue slot.
func (q *Queue) Contains(connID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[connID]
	return ok
}

// Waiting returns how many entries sit in the given bucket.
func (q *Queue) Waiting(gameType string, stakeTier int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buckets[bucketKey{GameType: gameType, StakeTier: stakeTier}])
}
