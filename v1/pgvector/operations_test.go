package pgvector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Aleph-Alpha/vectorcollections/v1/metastore"
	"github.com/Aleph-Alpha/vectorcollections/v1/tracer"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// recordingOptimization only counts calls; it never touches the database.
type recordingOptimization struct {
	name  string
	calls *int
}

func (o recordingOptimization) Name() string { return o.name }

func (o recordingOptimization) Apply(context.Context, *Collection) error {
	*o.calls++
	return nil
}

func TestApplyOptimizations_SpansAreSiblings(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tr := tracer.NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)), nil)

	cache := metastore.NewCache(metastore.NewMemoryStore())
	require.NoError(t, cache.AddCollection(ctx, metastore.KindContent, vectordb.CollectionStateInfo{
		CollectionInfo: vectordb.CollectionInfo{CollectionID: "m1", EmbeddingModel: testModel(vectordb.MetricCosine, vectordb.AggregationMin)},
		WorkState:      vectordb.WorkStateGreen,
	}))

	calls := 0
	db := NewVectorDb(nil, cache, DefaultConfig(), WithTracer(tr), WithOptimizations(
		recordingOptimization{name: "first", calls: &calls},
		recordingOptimization{name: "second", calls: &calls},
		recordingOptimization{name: "third", calls: &calls},
	))

	require.NoError(t, db.ApplyOptimizations(ctx))
	require.NoError(t, db.ApplyOptimizations(ctx))
	assert.Equal(t, 3, calls)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	for _, span := range spans {
		assert.Equal(t, "vectordb.apply_optimization", span.Name())
		assert.False(t, span.Parent().SpanID().IsValid(), "optimization spans must not nest")
	}

	info, err := cache.GetCollection(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, info.AppliedOptimizations)
}
