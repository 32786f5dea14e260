package gcService

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/repository/gcRepo"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu           sync.Mutex
	blobs        map[string]int
	reservations map[uuid.UUID]fileInfo.Reservation
	reserved     map[int64]int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		blobs:        make(map[string]int),
		reservations: make(map[uuid.UUID]fileInfo.Reservation),
		reserved:     make(map[int64]int64),
	}
}

func (q *fakeQueue) Queued(_ context.Context, limit int) ([]gcRepo.QueuedBlob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.blobs))
	for k := range q.blobs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if q.blobs[keys[i]] != q.blobs[keys[j]] {
			return q.blobs[keys[i]] < q.blobs[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]gcRepo.QueuedBlob, 0, len(keys))
	for _, k := range keys {
		out = append(out, gcRepo.QueuedBlob{StorageKey: k, Attempts: q.blobs[k]})
	}
	return out, nil
}

func (q *fakeQueue) Dequeue(_ context.Context, keys []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, k := range keys {
		delete(q.blobs, k)
	}
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.blobs[key]; ok {
		q.blobs[key]++
	}
	return nil
}

func (q *fakeQueue) StaleReservations(_ context.Context, cutoff time.Time, limit int) ([]fileInfo.Reservation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []fileInfo.Reservation
	for _, r := range q.reservations {
		if r.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (q *fakeQueue) Expire(_ context.Context, res fileInfo.Reservation) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.reservations[res.ID]; !ok {
		return false, nil
	}
	delete(q.reservations, res.ID)
	q.reserved[res.UserID] -= res.SizeBytes
	q.blobs[res.StorageKey] = 0
	return true, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	failing map[string]bool
}

func (b *fakeBlobs) DeleteFile(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing[key] {
		return errors.New("store unavailable")
	}
	b.deleted = append(b.deleted, key)
	return nil
}

func TestRunOnce_DrainsQueueInBatches(t *testing.T) {
	q := newFakeQueue()
	for _, k := range []string{"1/a", "1/b", "1/c", "2/d", "2/e"} {
		q.blobs[k] = 0
	}
	blobs := &fakeBlobs{}
	gc := New(q, blobs, Config{BatchSize: 2})

	report, err := gc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.BlobsRemoved)
	assert.Empty(t, q.blobs)
	assert.Len(t, blobs.deleted, 5)
}

func TestRunOnce_FailedBlobsStayQueued(t *testing.T) {
	q := newFakeQueue()
	q.blobs["1/a"] = 0
	q.blobs["1/b"] = 0
	blobs := &fakeBlobs{failing: map[string]bool{"1/a": true}}
	gc := New(q, blobs, Config{BatchSize: 10})

	report, err := gc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.BlobsRemoved)
	assert.Equal(t, 1, report.BlobsFailed)
	assert.Equal(t, map[string]int{"1/a": 1}, q.blobs)

	blobs.failing = nil
	report, err = gc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.BlobsRemoved)
	assert.Empty(t, q.blobs)
}

func TestRunOnce_StuckBlobsDoNotBlockNewerOnes(t *testing.T) {
	q := newFakeQueue()
	for _, k := range []string{"1/a", "1/b", "2/c", "2/d", "2/e"} {
		q.blobs[k] = 0
	}
	blobs := &fakeBlobs{failing: map[string]bool{"1/a": true, "1/b": true}}
	gc := New(q, blobs, Config{BatchSize: 2})

	report, err := gc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.BlobsRemoved)
	assert.Equal(t, 2, report.BlobsFailed, "each stuck blob is tried once per pass")
	assert.Equal(t, map[string]int{"1/a": 1, "1/b": 1}, q.blobs)
	assert.ElementsMatch(t, []string{"2/c", "2/d", "2/e"}, blobs.deleted)

	q.blobs["3/f"] = 0
	report, err = gc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.BlobsRemoved)
	assert.Equal(t, map[string]int{"1/a": 2, "1/b": 2}, q.blobs)
}

func TestRunOnce_ExpiresStaleReservations(t *testing.T) {
	q := newFakeQueue()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stale := fileInfo.Reservation{ID: uuid.New(), UserID: 7, SizeBytes: 100, StorageKey: "7/stale", CreatedAt: now.Add(-2 * time.Hour)}
	fresh := fileInfo.Reservation{ID: uuid.New(), UserID: 7, SizeBytes: 50, StorageKey: "7/fresh", CreatedAt: now.Add(-time.Minute)}
	q.reservations[stale.ID] = stale
	q.reservations[fresh.ID] = fresh
	q.reserved[7] = 150

	blobs := &fakeBlobs{}
	gc := New(q, blobs, Config{ReservationTTL: time.Hour})
	gc.now = func() time.Time { return now }

	report, err := gc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.ReservationsExpired)
	assert.Equal(t, int64(50), q.reserved[7])
	assert.Contains(t, q.reservations, fresh.ID)
	assert.Equal(t, []string{"7/stale"}, blobs.deleted, "the partial blob of the expired upload is removed in the same pass")
}

func TestCollect(t *testing.T) {
	q := newFakeQueue()
	q.blobs["1/a"] = 0
	q.blobs["1/b"] = 0
	blobs := &fakeBlobs{failing: map[string]bool{"1/b": true}}
	gc := New(q, blobs, Config{})

	gc.Collect(context.Background(), []string{"1/a", "1/b"})
	assert.Equal(t, map[string]int{"1/b": 1}, q.blobs)
}

func TestRun_StopsWithContext(t *testing.T) {
	q := newFakeQueue()
	gc := New(q, &fakeBlobs{}, Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		gc.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
