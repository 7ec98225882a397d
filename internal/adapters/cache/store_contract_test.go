package cache

import (
	"context"
	"database/sql"
	"path/filepath"
	"property-distance-service/internal/adapters/repositories"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/db"
	"property-distance-service/internal/ports"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every DistanceStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) ports.DistanceStore) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

	t.Run("RoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := domain.DistanceRecord{
			EntityAID:    1,
			EntityBID:    10,
			Walking:      &domain.Leg{DistanceMeters: 1001, TimeSeconds: 721, Estimated: true},
			Driving:      &domain.Leg{DistanceMeters: 1001, TimeSeconds: 120, Estimated: true},
			CalculatedAt: t0,
		}
		require.NoError(t, store.Upsert(ctx, rec))

		got, found, err := store.Find(ctx, rec.Key())
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, rec.EntityAID, got.EntityAID)
		assert.Equal(t, rec.EntityBID, got.EntityBID)
		assert.Equal(t, *rec.Walking, *got.Walking)
		assert.Equal(t, *rec.Driving, *got.Driving)
		assert.True(t, t0.Equal(got.CalculatedAt), "calculated_at %v != %v", got.CalculatedAt, t0)
	})

	t.Run("FindMissing", func(t *testing.T) {
		store := newStore(t)
		_, found, err := store.Find(context.Background(), domain.PairKey{EntityAID: 7, EntityBID: 8})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("MergeKeepsOtherMode", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := domain.PairKey{EntityAID: 1, EntityBID: 11}

		walking := domain.DistanceRecord{EntityAID: 1, EntityBID: 11, CalculatedAt: t0}.
			WithLeg(domain.Walking, domain.Leg{DistanceMeters: 500, TimeSeconds: 360})
		require.NoError(t, store.Upsert(ctx, walking))

		t1 := t0.Add(time.Hour)
		driving := domain.DistanceRecord{EntityAID: 1, EntityBID: 11, CalculatedAt: t1}.
			WithLeg(domain.Driving, domain.Leg{DistanceMeters: 650, TimeSeconds: 80})
		require.NoError(t, store.Upsert(ctx, driving))

		got, found, err := store.Find(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		require.NotNil(t, got.Walking)
		require.NotNil(t, got.Driving)
		assert.Equal(t, domain.Leg{DistanceMeters: 500, TimeSeconds: 360}, *got.Walking)
		assert.Equal(t, domain.Leg{DistanceMeters: 650, TimeSeconds: 80}, *got.Driving)
		assert.True(t, t1.Equal(got.CalculatedAt))
	})

	t.Run("RefreshOverwritesOnlySuppliedMode", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := domain.PairKey{EntityAID: 2, EntityBID: 20}

		both := domain.DistanceRecord{EntityAID: 2, EntityBID: 20, CalculatedAt: t0}.
			WithLeg(domain.Walking, domain.Leg{DistanceMeters: 100, TimeSeconds: 72}).
			WithLeg(domain.Driving, domain.Leg{DistanceMeters: 100, TimeSeconds: 12})
		require.NoError(t, store.Upsert(ctx, both))

		refresh := domain.DistanceRecord{EntityAID: 2, EntityBID: 20, CalculatedAt: t0.Add(time.Minute)}.
			WithLeg(domain.Driving, domain.Leg{DistanceMeters: 140, TimeSeconds: 30})
		require.NoError(t, store.Upsert(ctx, refresh))

		got, _, err := store.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.Leg{DistanceMeters: 100, TimeSeconds: 72}, *got.Walking)
		assert.Equal(t, domain.Leg{DistanceMeters: 140, TimeSeconds: 30}, *got.Driving)
	})

	t.Run("FindMany", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, b := range []int64{30, 31} {
			rec := domain.DistanceRecord{EntityAID: 3, EntityBID: b, CalculatedAt: t0}.
				WithLeg(domain.Walking, domain.Leg{DistanceMeters: int(b), TimeSeconds: int(b)})
			require.NoError(t, store.Upsert(ctx, rec))
		}

		got, err := store.FindMany(ctx, 3, []int64{30, 31, 32, 30})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, 31, got[31].Walking.DistanceMeters)

		none, err := store.FindMany(ctx, 3, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ConcurrentUpsertsSameKey", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		key := domain.PairKey{EntityAID: 4, EntityBID: 40}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				mode := domain.Walking
				if i%2 == 1 {
					mode = domain.Driving
				}
				rec := domain.DistanceRecord{EntityAID: 4, EntityBID: 40, CalculatedAt: t0}.
					WithLeg(mode, domain.Leg{DistanceMeters: 900, TimeSeconds: 100})
				assert.NoError(t, store.Upsert(ctx, rec))
			}(i)
		}
		wg.Wait()

		got, found, err := store.Find(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.NotNil(t, got.Walking, "walking leg lost to a concurrent writer")
		assert.NotNil(t, got.Driving, "driving leg lost to a concurrent writer")

		many, err := store.FindMany(ctx, 4, []int64{40})
		require.NoError(t, err)
		assert.Len(t, many, 1)
	})
}

func newSqliteDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.SQLite, filepath.Join(t.TempDir(), "distances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, repositories.InitSchema(ctx, conn, db.SQLite))
	return conn
}

func TestSqliteDistanceStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) ports.DistanceStore {
		return NewSqliteDistanceStore(newSqliteDB(t))
	})
}

func TestSqliteDistanceStoreSingleRowPerPair(t *testing.T) {
	conn := newSqliteDB(t)
	store := NewSqliteDistanceStore(conn)
	ctx := context.Background()

	rec := domain.DistanceRecord{EntityAID: 1, EntityBID: 2, CalculatedAt: time.Now()}.
		WithLeg(domain.Walking, domain.Leg{DistanceMeters: 1, TimeSeconds: 1})
	require.NoError(t, store.Upsert(ctx, rec))
	require.NoError(t, store.Upsert(ctx, rec))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM distance_records WHERE entity_a_id = 1 AND entity_b_id = 2`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMemoryDistanceStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) ports.DistanceStore {
		return NewMemoryDistanceStore()
	})
}

func TestSqliteDistanceStoreNilDB(t *testing.T) {
	store := NewSqliteDistanceStore(nil)
	_, _, err := store.Find(context.Background(), domain.PairKey{})
	assert.ErrorIs(t, err, domain.ErrStorage)
}
