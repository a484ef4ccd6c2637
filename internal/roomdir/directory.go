// Package roomdir is the lobby/presence directory: coarse room summaries
// kept in Redis with a bounded TTL so abandoned rooms self-clean. It is
// consulted for listings only and has no authority over session phase.
package roomdir

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/models"
)

// keyPrefix namespaces room records in Redis.
const keyPrefix = "naijaplay:room:"

// DefaultTTL is the record lifetime; every write renews it.
const DefaultTTL = 10 * time.Minute

// Directory stores RoomRecords in Redis, renewing the TTL on every
// mutation. When a Redis operation fails, that operation transparently
// degrades to an in-process table so lobby listings stay available; the
// degradation is logged. A nil client means fallback-only operation.
type Directory struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	mu    sync.Mutex
	local map[uuid.UUID]*models.RoomRecord
}

// New builds a directory over the given Redis client. rdb may be nil to run
// purely in memory (e.g. tests or Redis-less deployments).
func New(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Directory{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		local:  make(map[uuid.UUID]*models.RoomRecord),
	}
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// Create writes a new room record. Creating an existing ID overwrites it.
func (d *Directory) Create(ctx context.Context, room *models.RoomRecord) {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	d.write(ctx, room)
}

// Update rewrites the record and renews its TTL.
func (d *Directory) Update(ctx context.Context, room *models.RoomRecord) {
	d.write(ctx, room)
}

// write persists to Redis, falling back to the local table for this
// operation on any backend failure.
func (d *Directory) write(ctx context.Context, room *models.RoomRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeLocked(ctx, room)
}

// writeLocked is write with d.mu already held, so read-modify-write callers
// can keep the mutation and the persist in one critical section.
func (d *Directory) writeLocked(ctx context.Context, room *models.RoomRecord) {
	if d.rdb != nil {
		data, err := json.Marshal(room)
		if err == nil {
			if err = d.rdb.Set(ctx, key(room.RoomID), data, d.ttl).Err(); err == nil {
				// Keep the fallback copy out of the way once Redis holds it.
				delete(d.local, room.RoomID)
				return
			}
		}
		d.logger.Warnf("roomdir: redis write for room %s failed, using local table: %v", room.RoomID, err)
	}
	d.local[room.RoomID] = room
}

// Get returns the record for a room ID, or nil if absent.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) *models.RoomRecord {
	if d.rdb != nil {
		data, err := d.rdb.Get(ctx, key(id)).Bytes()
		switch {
		case err == nil:
			var room models.RoomRecord
			if jerr := json.Unmarshal(data, &room); jerr == nil {
				return &room
			}
			d.logger.Warnf("roomdir: corrupt record for room %s: %v", id, err)
		case err == redis.Nil:
			// Absent in Redis; may still live in the fallback table.
		default:
			d.logger.Warnf("roomdir: redis read for room %s failed, using local table: %v", id, err)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.local[id]
}

// Delete removes a room record from both stores.
func (d *Directory) Delete(ctx context.Context, id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleteLocked(ctx, id)
}

// deleteLocked is Delete with d.mu already held.
func (d *Directory) deleteLocked(ctx context.Context, id uuid.UUID) {
	if d.rdb != nil {
		if err := d.rdb.Del(ctx, key(id)).Err(); err != nil {
			d.logger.Warnf("roomdir: redis delete for room %s failed: %v", id, err)
		}
	}
	delete(d.local, id)
}

// ListAll returns every known room: a prefix scan over Redis merged with
// whatever sits in the local fallback table.
func (d *Directory) ListAll(ctx context.Context) []*models.RoomRecord {
	seen := make(map[uuid.UUID]bool)
	var rooms []*models.RoomRecord

	if d.rdb != nil {
		iter := d.rdb.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			data, err := d.rdb.Get(ctx, iter.Val()).Bytes()
			if err != nil {
				continue
			}
			var room models.RoomRecord
			if err := json.Unmarshal(data, &room); err != nil {
				continue
			}
			rooms = append(rooms, &room)
			seen[room.RoomID] = true
		}
		if err := iter.Err(); err != nil {
			d.logger.Warnf("roomdir: redis scan failed, listing local table only: %v", err)
		}
	}

	d.mu.Lock()
	for id, room := range d.local {
		if !seen[id] {
			rooms = append(rooms, room)
		}
	}
	d.mu.Unlock()
	return rooms
}

// AddMember records a connection as present in the room and bumps the
// player count. The read, the mutation and the write stay under d.mu so two
// concurrent membership updates cannot clobber each other's record.
func (d *Directory) AddMember(ctx context.Context, id, connID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room := d.getLocked(ctx, id)
	if room == nil || room.HasMember(connID) {
		return
	}
	room.MemberConnIDs = append(room.MemberConnIDs, connID)
	room.PlayerCount = len(room.MemberConnIDs)
	d.writeLocked(ctx, room)
}

// RemoveMember drops a connection from the room. A room whose membership
// reaches zero is deleted.
func (d *Directory) RemoveMember(ctx context.Context, id, connID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room := d.getLocked(ctx, id)
	if room == nil {
		return
	}
	for i, m := range room.MemberConnIDs {
		if m == connID {
			room.MemberConnIDs = append(room.MemberConnIDs[:i], room.MemberConnIDs[i+1:]...)
			break
		}
	}
	room.PlayerCount = len(room.MemberConnIDs)
	if room.PlayerCount == 0 {
		d.deleteLocked(ctx, id)
		return
	}
	d.writeLocked(ctx, room)
}

// getLocked reads the record while d.mu is held, consulting Redis directly
// (read-modify-write callers serialize through d.mu so concurrent
// membership updates cannot interleave mid-update).
func (d *Directory) getLocked(ctx context.Context, id uuid.UUID) *models.RoomRecord {
	if d.rdb != nil {
		data, err := d.rdb.Get(ctx, key(id)).Bytes()
		if err == nil {
			var room models.RoomRecord
			if jerr := json.Unmarshal(data, &room); jerr == nil {
				return &room
			}
		} else if err != redis.Nil {
			d.logger.Warnf("roomdir: redis read for room %s failed, using local table: %v", id, err)
		}
	}
	return d.local[id]
}
