package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/Aleph-Alpha/vectorcollections/v1/logger"
	"github.com/Aleph-Alpha/vectorcollections/v1/metastore"
	"github.com/Aleph-Alpha/vectorcollections/v1/postgres"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// setupPgvectorContainer starts Postgres with the vector extension available
// and returns a config pointing at it.
func setupPgvectorContainer(ctx context.Context, t *testing.T) postgres.Config {
	t.Helper()

	port, err := getFreePort()
	require.NoError(t, err)
	portStr := fmt.Sprintf("%d", port)

	req := testcontainers.ContainerRequest{
		Image: "pgvector/pgvector:pg16",
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		ExposedPorts: []string{"5432/tcp"},
		HostConfigModifier: func(cfg *container.HostConfig) {
			cfg.PortBindings = nat.PortMap{
				"5432/tcp": []nat.PortBinding{{HostPort: portStr}},
			}
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	containerInstance, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start pgvector container")
	t.Cleanup(func() {
		if err := containerInstance.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := containerInstance.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := containerInstance.MappedPort(ctx, "5432")
	require.NoError(t, err)

	require.NoError(t, waitForPostgresReady(host, mappedPort.Port(), "testuser", "testpass", "testdb", 30*time.Second))

	return postgres.DefaultConfig().WithConnection(postgres.Connection{
		Host:     host,
		Port:     mappedPort.Port(),
		User:     "testuser",
		Password: "testpass",
		DbName:   "testdb",
		SSLMode:  "disable",
	})
}

func getFreePort() (int, error) {
	addr, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port, nil
}

func waitForPostgresReady(host, port, user, password, dbname string, timeout time.Duration) error {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		db, err := sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for PostgreSQL to be ready after %s", timeout)
}

type engine struct {
	pg    *postgres.Postgres
	cache *metastore.Cache
	db    *VectorDb
}

func newEngine(ctx context.Context, t *testing.T, cfg postgres.Config) *engine {
	t.Helper()

	pg, err := postgres.NewPostgres(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.GracefulShutdown() })

	store := metastore.NewPostgresStore(pg)
	require.NoError(t, store.Migrate(ctx))
	cache := metastore.NewCache(store)

	db := NewVectorDb(pg, cache, DefaultConfig().WithLock(3, 20*time.Millisecond), WithLogger(logger.NewNop()))
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { _ = db.Close() })

	return &engine{pg: pg, cache: cache, db: db}
}

func model2D(id string, metric vectordb.MetricType, agg vectordb.MetricAggregationType) vectordb.EmbeddingModelInfo {
	return vectordb.EmbeddingModelInfo{
		ID:                    id,
		Dimensions:            2,
		MetricType:            metric,
		MetricAggregationType: agg,
		HNSW:                  vectordb.DefaultHNSWParameters(),
	}
}

func foundIDs(res *vectordb.SearchResults) []string {
	ids := make([]string, len(res.Found))
	for i, f := range res.Found {
		ids[i] = f.ObjectID
	}
	return ids
}

func pageIDs(objs []vectordb.Object) []string {
	ids := make([]string, len(objs))
	for i, o := range objs {
		ids[i] = o.ObjectID
	}
	return ids
}

func TestVectorDbIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	e := newEngine(ctx, t, setupPgvectorContainer(ctx, t))

	t.Run("CosineDistances", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("cos", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		require.NoError(t, coll.Insert(ctx, []vectordb.Object{
			object("a", part("p1", false, 1, 0)),
			object("b", part("p1", false, 0, 1)),
		}))

		res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10})
		require.NoError(t, err)
		require.Len(t, res.Found, 2)
		assert.Equal(t, []string{"a", "b"}, foundIDs(res))
		assert.InDelta(t, 0.0, res.Found[0].Distance, 1e-6)
		assert.InDelta(t, 1.0, res.Found[1].Distance, 1e-6)
		assert.Nil(t, res.NextOffset)

		res, err = coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10, MaxDistance: vectordb.Ptr(0.5)})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, foundIDs(res))

		_, err = coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0, 0}, Limit: 10})
		assert.ErrorIs(t, err, vectordb.ErrDimensionMismatch)
	})

	t.Run("AggregationAndMeanOnly", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("euc", vectordb.MetricEuclid, vectordb.AggregationAvg))
		require.NoError(t, err)

		require.NoError(t, coll.Insert(ctx, []vectordb.Object{
			object("a", part("p1", false, 0, 0), part("p2", false, 2, 0), part("avg", true, 1, 0)),
		}))

		res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{0, 0}, Limit: 1, WithVectors: true})
		require.NoError(t, err)
		require.Len(t, res.Found, 1)
		assert.InDelta(t, 1.0, res.Found[0].Distance, 1e-6)
		require.Len(t, res.Found[0].Parts, 3)
		assert.Equal(t, []float32{1, 0}, res.Found[0].Parts[0].Vector)

		res, err = coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{0, 0}, Limit: 1, MeanOnly: true})
		require.NoError(t, err)
		require.Len(t, res.Found, 1)
		assert.InDelta(t, 1.0, res.Found[0].Distance, 1e-6)
		assert.Nil(t, res.Found[0].Parts[0].Vector)
	})

	t.Run("FiltersAndPagination", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("flt", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		var objs []vectordb.Object
		for i := 0; i < 6; i++ {
			lang := "de"
			if i%2 == 1 {
				lang = "en"
			}
			objs = append(objs, vectordb.Object{
				ObjectID: fmt.Sprintf("o%d", i),
				Payload: map[string]any{
					"lang":  lang,
					"year":  2018 + i,
					"title": fmt.Sprintf("vector search part %d", i),
					"tags":  []any{"t", fmt.Sprintf("t%d", i)},
				},
				Parts: []vectordb.ObjectPart{part("p", false, 1, float32(i))},
			})
		}
		require.NoError(t, coll.Insert(ctx, objs))

		filter := vectordb.NewPayloadFilter(vectordb.NewBool(
			vectordb.Must(vectordb.NewTerm("lang", "de")),
			vectordb.MustNot(vectordb.NewListHasAny("tags", "t4")),
		))

		count, err := coll.CountByPayloadFilter(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		page, err := coll.FindByPayloadFilter(ctx, filter, 10, 0, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"o0", "o2"}, pageIDs(page.Objects))
		assert.Nil(t, page.NextOffset)

		res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10, Filter: filter})
		require.NoError(t, err)
		assert.ElementsMatch(t, pageIDs(page.Objects), foundIDs(res))

		ranged := vectordb.NewPayloadFilter(vectordb.NewRange("year", vectordb.NumericRange{Gte: vectordb.Ptr(2020.0), Lt: vectordb.Ptr(2023.0)}))
		count, err = coll.CountByPayloadFilter(ctx, ranged)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		matched := vectordb.NewPayloadFilter(vectordb.NewMatch("title", "vect"))
		count, err = coll.CountByPayloadFilter(ctx, matched)
		require.NoError(t, err)
		assert.Equal(t, 6, count)

		first, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"o0", "o1"}, foundIDs(first))
		require.NotNil(t, first.NextOffset)
		assert.Equal(t, 2, *first.NextOffset)

		next, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 2, Offset: *first.NextOffset})
		require.NoError(t, err)
		assert.Equal(t, []string{"o2", "o3"}, foundIDs(next))

		sorted, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{
			Vector: []float32{1, 0},
			Limit:  3,
			SortBy: &vectordb.SortByOptions{Field: "year", Order: vectordb.SortDesc},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"o5", "o4", "o3"}, foundIDs(sorted))
		require.NotNil(t, sorted.NextOffset)

		batch, err := coll.GetObjectsCommonDataBatch(ctx, 4, 4, false)
		require.NoError(t, err)
		assert.Equal(t, 6, batch.Total)
		assert.Len(t, batch.Objects, 2)
		assert.Equal(t, 6, batch.NextOffset)

		_, err = coll.CountByPayloadFilter(ctx, vectordb.NewPayloadFilter(vectordb.NewTerms("lang", "de", 1)))
		assert.ErrorIs(t, err, vectordb.ErrInvalidFilter)
	})

	t.Run("MustNotKeepsObjectsWithoutField", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("mnf", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		require.NoError(t, coll.Insert(ctx, []vectordb.Object{
			{ObjectID: "cheap", Payload: map[string]any{"price": 1}, Parts: []vectordb.ObjectPart{part("p", false, 1, 0)}},
			{ObjectID: "dear", Payload: map[string]any{"price": 10}, Parts: []vectordb.ObjectPart{part("p", false, 1, 0.1)}},
			{ObjectID: "unpriced", Payload: map[string]any{"name": "x"}, Parts: []vectordb.ObjectPart{part("p", false, 1, 0.2)}},
			{ObjectID: "mine", UserID: vectordb.Ptr("u1"), Parts: []vectordb.ObjectPart{part("p", false, 1, 0.3)}},
		}))

		notDear := vectordb.NewPayloadFilter(vectordb.NewBool(
			vectordb.MustNot(vectordb.NewRange("price", vectordb.NumericRange{Gt: vectordb.Ptr(5.0)})),
		))
		page, err := coll.FindByPayloadFilter(ctx, notDear, 10, 0, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"cheap", "mine", "unpriced"}, pageIDs(page.Objects))

		res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10, Filter: notDear})
		require.NoError(t, err)
		assert.Equal(t, []string{"cheap", "unpriced"}, foundIDs(res))

		notMine := vectordb.NewPayloadFilter(vectordb.NewBool(
			vectordb.MustNot(vectordb.NewColumnTerm("user_id", "u1")),
		))
		count, err := coll.CountByPayloadFilter(ctx, notMine)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		res, err = coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10, Filter: notMine})
		require.NoError(t, err)
		assert.Equal(t, []string{"cheap", "dear", "unpriced"}, foundIDs(res))
	})

	t.Run("Personalization", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("per", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		require.NoError(t, coll.Insert(ctx, []vectordb.Object{
			object("o1", part("p", false, 1, 0)),
			{ObjectID: "o1_u1", OriginalID: vectordb.Ptr("o1"), UserID: vectordb.Ptr("u1"), Parts: []vectordb.ObjectPart{part("p", false, 1, 0.1)}},
			{ObjectID: "o2_u2", UserID: vectordb.Ptr("u2"), Parts: []vectordb.ObjectPart{part("p", false, 1, 0)}},
		}))

		anonymous, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"o1"}, foundIDs(anonymous))

		personal, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 10, UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"o1_u1"}, foundIDs(personal))

		total, err := coll.GetTotal(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 2, total)

		variants, err := coll.FindByOriginalIDs(ctx, []string{"o1"}, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"o1_u1"}, pageIDs(variants))
	})

	t.Run("UpsertConverges", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("ups", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		require.NoError(t, coll.Upsert(ctx, []vectordb.Object{object("a", part("p1", false, 1, 0), part("p2", false, 0, 1))}, false))
		require.NoError(t, coll.Upsert(ctx, []vectordb.Object{object("a", part("p3", false, 1, 1))}, false))

		objs, err := coll.FindByIDs(ctx, []string{"a"}, true)
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Len(t, objs[0].Parts, 3)

		update := vectordb.Object{ObjectID: "a", Payload: map[string]any{"v": 2.0}, Parts: []vectordb.ObjectPart{part("p1", false, 0, 1)}}
		require.NoError(t, coll.Upsert(ctx, []vectordb.Object{update}, true))
		require.NoError(t, coll.Upsert(ctx, []vectordb.Object{update}, true))

		objs, err = coll.FindByIDs(ctx, []string{"a"}, true)
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, map[string]any{"v": 2.0}, objs[0].Payload)
		assert.Equal(t, []vectordb.ObjectPart{part("p1", false, 0, 1)}, objs[0].Parts)

		err = coll.Insert(ctx, []vectordb.Object{object("a")})
		var opErr *vectordb.OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "insert", opErr.Op)
		assert.True(t, postgres.IsDuplicateKey(err))

		err = coll.Insert(ctx, []vectordb.Object{object("b", part("p", false, 1, 0, 0))})
		assert.ErrorIs(t, err, vectordb.ErrDimensionMismatch)

		require.NoError(t, coll.Delete(ctx, []string{"a", "missing"}))
		total, err := coll.GetTotal(ctx, false)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("SingleAveragePart", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("avg", vectordb.MetricEuclid, vectordb.AggregationAvg))
		require.NoError(t, err)

		require.NoError(t, coll.Upsert(ctx, []vectordb.Object{object("a", part("p0", true, 0, 0), part("p1", false, 2, 0))}, false))
		require.NoError(t, coll.Upsert(ctx, []vectordb.Object{object("a", part("p2", true, 4, 0))}, false))

		objs, err := coll.FindByIDs(ctx, []string{"a"}, true)
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, []vectordb.ObjectPart{
			part("p0", false, 0, 0),
			part("p1", false, 2, 0),
			part("p2", true, 4, 0),
		}, objs[0].Parts)

		res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{0, 0}, Limit: 1, MeanOnly: true})
		require.NoError(t, err)
		require.Len(t, res.Found, 1)
		assert.InDelta(t, 4.0, res.Found[0].Distance, 1e-6)

		err = e.pg.DB().Exec(`UPDATE "vc_avg_parts" SET is_average = true WHERE object_id = 'a'`).Error
		require.Error(t, err)
		assert.True(t, postgres.IsDuplicateKey(err))
	})

	t.Run("LockObjects", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("lck", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)
		require.NoError(t, coll.Insert(ctx, []vectordb.Object{object("a", part("p", false, 1, 0))}))

		held := make(chan struct{})
		release := make(chan struct{})
		holderErr := make(chan error, 1)
		go func() {
			holderErr <- coll.LockObjects(ctx, []string{"a"}, func(ctx context.Context, locked vectordb.Collection) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		err = coll.LockObjects(ctx, []string{"a"}, func(context.Context, vectordb.Collection) error { return nil },
			vectordb.WithLockAttempts(2), vectordb.WithLockWait(10*time.Millisecond))
		var lockErr *vectordb.LockAcquisitionError
		require.ErrorAs(t, err, &lockErr)
		assert.Equal(t, 2, lockErr.Attempts)
		assert.Equal(t, []string{"a"}, lockErr.ObjectIDs)

		close(release)
		require.NoError(t, <-holderErr)

		boom := errors.New("boom")
		err = coll.LockObjects(ctx, []string{"a"}, func(ctx context.Context, locked vectordb.Collection) error {
			if err := locked.Delete(ctx, []string{"a"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, vectordb.ErrLockAcquisition)

		objs, err := coll.FindByIDs(ctx, []string{"a"}, false)
		require.NoError(t, err)
		assert.Len(t, objs, 1, "delete inside a failed lock callback must roll back")
	})

	t.Run("CreateIsIdempotent", func(t *testing.T) {
		m := model2D("idem", vectordb.MetricDot, vectordb.AggregationMin)
		_, err := e.db.CreateCollection(ctx, m)
		require.NoError(t, err)
		_, err = e.db.CreateCollection(ctx, m)
		require.NoError(t, err)

		other := m
		other.Dimensions = 3
		_, err = e.db.CreateCollection(ctx, other)
		assert.ErrorIs(t, err, vectordb.ErrCollectionExists)

		bad := m
		bad.ID = "Bad-Name"
		_, err = e.db.CreateCollection(ctx, bad)
		assert.ErrorIs(t, err, vectordb.ErrInvalidCollectionName)

		info, err := e.db.meta.GetCollection(ctx, "idem")
		require.NoError(t, err)
		assert.Equal(t, vectordb.WorkStateGreen, info.WorkState)
	})

	t.Run("DeleteWaitsForBlueSwitch", func(t *testing.T) {
		store := metastore.NewPostgresStore(e.pg)
		doc := vectordb.CollectionStateInfo{
			CollectionInfo: vectordb.CollectionInfo{CollectionID: "race_q", EmbeddingModel: model2D("race", vectordb.MetricCosine, vectordb.AggregationMin)},
			WorkState:      vectordb.WorkStateGreen,
		}
		require.NoError(t, store.Insert(ctx, metastore.KindQuery, doc))

		// The open transaction stands in for a blue switch that has share
		// locked the document and not yet written the pointer.
		tx := e.pg.DB().WithContext(ctx).Begin()
		require.NoError(t, tx.Error)
		require.NoError(t, tx.Exec(`SELECT collection_id FROM vc_collection_info WHERE kind = 'query' AND collection_id = 'race_q' FOR SHARE`).Error)

		deleted := make(chan error, 1)
		go func() { deleted <- store.Delete(ctx, metastore.KindQuery, "race_q", nil) }()
		select {
		case err := <-deleted:
			tx.Rollback()
			t.Fatalf("delete finished while the document was share locked: %v", err)
		case <-time.After(300 * time.Millisecond):
		}

		require.NoError(t, tx.Exec(`INSERT INTO vc_blue_pointer (kind, collection_id, updated_at) VALUES ('query', 'race_q', now())
			ON CONFLICT (kind) DO UPDATE SET collection_id = EXCLUDED.collection_id`).Error)
		require.NoError(t, tx.Commit().Error)
		assert.ErrorIs(t, <-deleted, vectordb.ErrDeleteBlueCollection)

		require.NoError(t, e.pg.DB().Exec(`DELETE FROM vc_blue_pointer WHERE kind = 'query'`).Error)
		require.NoError(t, store.Delete(ctx, metastore.KindQuery, "race_q", nil))
	})

	t.Run("BlueGreenLifecycle", func(t *testing.T) {
		m1 := model2D("bg1", vectordb.MetricCosine, vectordb.AggregationMin)
		m2 := model2D("bg2", vectordb.MetricCosine, vectordb.AggregationMin)

		_, err := e.db.CreateCollection(ctx, m1)
		require.NoError(t, err)
		_, err = e.db.CreateQueryCollection(ctx, m1)
		require.NoError(t, err)
		require.NoError(t, e.db.SetBlueCollection(ctx, "bg1"))

		blue, err := e.db.GetBlueCollection(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bg1", blue.Info().CollectionID)

		blueQuery, err := e.db.GetBlueQueryCollection(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bg1_q", blueQuery.Info().CollectionID)

		err = e.db.DeleteCollection(ctx, "bg1")
		var blueErr *vectordb.DeleteBlueCollectionError
		require.ErrorAs(t, err, &blueErr)
		err = e.db.DeleteQueryCollection(ctx, "bg1_q")
		assert.ErrorIs(t, err, vectordb.ErrDeleteBlueCollection)

		_, err = e.db.CreateCollection(ctx, m2)
		require.NoError(t, err)
		require.NoError(t, e.db.SetBlueCollection(ctx, "bg2"))

		state, err := blue.StateInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, vectordb.WorkStateGreen, state.WorkState)

		// The query pointer stays on bg1_q because bg2 has no query collection.
		err = e.db.DeleteQueryCollection(ctx, "bg1_q")
		assert.ErrorIs(t, err, vectordb.ErrDeleteBlueCollection)

		require.NoError(t, e.db.DeleteCollection(ctx, "bg1"))
		exists, err := e.db.CollectionExists(ctx, "bg1")
		require.NoError(t, err)
		assert.False(t, exists)

		var tables int64
		require.NoError(t, e.pg.DB().Raw("SELECT count(*) FROM information_schema.tables WHERE table_name IN ('vc_bg1_objects', 'vc_bg1_parts')").Scan(&tables).Error)
		assert.Zero(t, tables)

		err = e.db.DeleteCollection(ctx, "bg1")
		assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)
	})

	t.Run("OptimizationsAreAppliedOnce", func(t *testing.T) {
		coll, err := e.db.CreateCollection(ctx, model2D("opt", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		require.NoError(t, e.db.ApplyOptimizations(ctx))
		require.NoError(t, e.db.ApplyOptimizations(ctx))
		require.NoError(t, e.db.ApplyQueryOptimizations(ctx))

		state, err := coll.StateInfo(ctx)
		require.NoError(t, err)
		var want []string
		for _, o := range DefaultOptimizations() {
			want = append(want, o.Name())
		}
		assert.Equal(t, want, state.AppliedOptimizations)

		var indexes []string
		require.NoError(t, e.pg.DB().Raw("SELECT indexname FROM pg_indexes WHERE tablename IN ('vc_opt_objects', 'vc_opt_parts')").Scan(&indexes).Error)
		sort.Strings(indexes)
		assert.Contains(t, indexes, "vc_opt_payload_gin")
		assert.Contains(t, indexes, "vc_opt_original_user")
		assert.Contains(t, indexes, "vc_opt_parts_avg")

		require.NoError(t, coll.CreateIndex(ctx))
		require.NoError(t, coll.CreateIndex(ctx))
		state, err = coll.StateInfo(ctx)
		require.NoError(t, err)
		assert.True(t, state.IndexCreated)

		require.NoError(t, coll.Insert(ctx, []vectordb.Object{object("a", part("p", false, 1, 0))}))
		res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: []float32{1, 0}, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, foundIDs(res))
	})

	t.Run("CacheFollowsOtherInstance", func(t *testing.T) {
		other := NewVectorDb(e.pg, metastore.NewCache(metastore.NewPostgresStore(e.pg)), DefaultConfig())
		_, err := other.CreateCollection(ctx, model2D("ext", vectordb.MetricCosine, vectordb.AggregationMin))
		require.NoError(t, err)

		exists, err := e.db.CollectionExists(ctx, "ext")
		require.NoError(t, err)
		assert.False(t, exists, "without a notifier the cache only sees its own writes")

		conflicting := model2D("ext", vectordb.MetricEuclid, vectordb.AggregationAvg)
		_, err = e.db.CreateCollection(ctx, conflicting)
		assert.ErrorIs(t, err, vectordb.ErrCollectionExists)

		// The conflict reloaded the snapshot and left the recorded model alone.
		info, err := e.cache.GetCollection(ctx, "ext")
		require.NoError(t, err)
		assert.Equal(t, vectordb.MetricCosine, info.EmbeddingModel.MetricType)
		assert.Equal(t, vectordb.WorkStateGreen, info.WorkState)

		same := model2D("ext2", vectordb.MetricCosine, vectordb.AggregationMin)
		_, err = other.CreateCollection(ctx, same)
		require.NoError(t, err)
		_, err = other.meta.MarkOptimizationApplied(ctx, metastore.KindContent, "ext2", "payload_gin_index")
		require.NoError(t, err)

		coll, err := e.db.CreateCollection(ctx, same)
		require.NoError(t, err)
		state, err := coll.StateInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, vectordb.WorkStateGreen, state.WorkState)
		assert.Equal(t, []string{"payload_gin_index"}, state.AppliedOptimizations)

		require.NoError(t, e.db.InvalidateCache(ctx))
		exists, err = e.db.CollectionExists(ctx, "ext2")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestVectorDbFXModule(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pgCfg := setupPgvectorContainer(ctx, t)

	var db vectordb.VectorDb
	app := fxtest.New(t,
		fx.Supply(logger.NewNop()),
		fx.Provide(
			func() postgres.Config { return pgCfg },
			func() metastore.Config { return metastore.Config{Backend: metastore.BackendPostgres} },
			func() Config { return DefaultConfig() },
		),
		postgres.FXModule,
		metastore.FXModule,
		FXModule,
		fx.Populate(&db),
	)
	app.RequireStart()
	defer app.RequireStop()

	coll, err := db.CreateCollection(ctx, model2D("fx", vectordb.MetricCosine, vectordb.AggregationMin))
	require.NoError(t, err)
	require.NoError(t, coll.Insert(ctx, []vectordb.Object{object("a", part("p", false, 0, 1))}))

	list, err := db.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fx", list[0].CollectionID)
}
