package roomdir

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/models"
)

func newTestDirectory(t *testing.T) (*Directory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(rdb, time.Minute, logger), mr
}

func testRoom() *models.RoomRecord {
	return &models.RoomRecord{
		RoomID:     uuid.New(),
		GameType:   "NPAT",
		Status:     models.RoomStatusWaiting,
		MaxPlayers: 8,
		CreatedAt:  time.Now(),
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	room.DisplayName = "Friday night NPAT"
	d.Create(ctx, room)

	assert.True(t, mr.Exists(keyPrefix+room.RoomID.String()))

	got := d.Get(ctx, room.RoomID)
	require.NotNil(t, got)
	assert.Equal(t, room.RoomID, got.RoomID)
	assert.Equal(t, "Friday night NPAT", got.DisplayName)
	assert.Equal(t, models.RoomStatusWaiting, got.Status)
}

func TestGetUnknownRoom(t *testing.T) {
	d, _ := newTestDirectory(t)
	assert.Nil(t, d.Get(context.Background(), uuid.New()))
}

func TestWriteRenewsTTL(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)
	k := keyPrefix + room.RoomID.String()
	assert.Equal(t, time.Minute, mr.TTL(k))

	mr.FastForward(30 * time.Second)
	room.Status = models.RoomStatusInRound
	d.Update(ctx, room)
	assert.Equal(t, time.Minute, mr.TTL(k), "every write renews the full TTL")
}

func TestRecordExpires(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)

	mr.FastForward(2 * time.Minute)
	assert.Nil(t, d.Get(ctx, room.RoomID), "abandoned rooms self-clean once the TTL lapses")
	assert.Empty(t, d.ListAll(ctx))
}

func TestDeleteRemovesRecord(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)
	d.Delete(ctx, room.RoomID)

	assert.False(t, mr.Exists(keyPrefix+room.RoomID.String()))
	assert.Nil(t, d.Get(ctx, room.RoomID))
}

func TestListAllScansPrefix(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	a, b := testRoom(), testRoom()
	d.Create(ctx, a)
	d.Create(ctx, b)
	// Unrelated keys in the same database must not leak into listings.
	mr.Set("naijaplay:session:other", "{}")

	rooms := d.ListAll(ctx)
	require.Len(t, rooms, 2)
	ids := []uuid.UUID{rooms[0].RoomID, rooms[1].RoomID}
	assert.ElementsMatch(t, []uuid.UUID{a.RoomID, b.RoomID}, ids)
}

func TestRedisFailureFallsBackPerOperation(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	healthy := testRoom()
	d.Create(ctx, healthy)

	mr.Close()

	// Writes during the outage land in the local table.
	degraded := testRoom()
	degraded.DisplayName = "written during outage"
	d.Create(ctx, degraded)

	got := d.Get(ctx, degraded.RoomID)
	require.NotNil(t, got)
	assert.Equal(t, "written during outage", got.DisplayName)

	// Listings keep serving whatever is reachable.
	rooms := d.ListAll(ctx)
	require.Len(t, rooms, 1)
	assert.Equal(t, degraded.RoomID, rooms[0].RoomID)
}

func TestNilClientRunsLocalOnly(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d := New(nil, 0, logger)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)

	require.NotNil(t, d.Get(ctx, room.RoomID))
	assert.Len(t, d.ListAll(ctx), 1)

	d.Delete(ctx, room.RoomID)
	assert.Nil(t, d.Get(ctx, room.RoomID))
}

func TestMembershipCounting(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)

	c1, c2 := uuid.New(), uuid.New()
	d.AddMember(ctx, room.RoomID, c1)
	d.AddMember(ctx, room.RoomID, c2)
	d.AddMember(ctx, room.RoomID, c1) // joining twice is a no-op

	got := d.Get(ctx, room.RoomID)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.PlayerCount)
	assert.True(t, got.HasMember(c1))
	assert.True(t, got.HasMember(c2))

	d.RemoveMember(ctx, room.RoomID, c1)
	got = d.Get(ctx, room.RoomID)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.PlayerCount)
	assert.False(t, got.HasMember(c1))
}

func TestConcurrentMembershipUpdatesLoseNothing(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)

	// Racing joins must all land: each read-modify-write runs as one
	// critical section, so no update can overwrite another's record.
	conns := make([]uuid.UUID, 8)
	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = uuid.New()
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			d.AddMember(ctx, room.RoomID, id)
		}(conns[i])
	}
	wg.Wait()

	got := d.Get(ctx, room.RoomID)
	require.NotNil(t, got)
	assert.Equal(t, len(conns), got.PlayerCount)
	for _, id := range conns {
		assert.True(t, got.HasMember(id))
	}
}

func TestLastMemberLeavingDeletesRoom(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	room := testRoom()
	d.Create(ctx, room)

	c := uuid.New()
	d.AddMember(ctx, room.RoomID, c)
	d.RemoveMember(ctx, room.RoomID, c)

	assert.False(t, mr.Exists(keyPrefix+room.RoomID.String()))
	assert.Nil(t, d.Get(ctx, room.RoomID))
}
