package pgvector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

func testModel(metric vectordb.MetricType, agg vectordb.MetricAggregationType) vectordb.EmbeddingModelInfo {
	return vectordb.EmbeddingModelInfo{
		ID:                    "m1",
		Dimensions:            3,
		MetricType:            metric,
		MetricAggregationType: agg,
		HNSW:                  vectordb.DefaultHNSWParameters(),
	}
}

func TestAllRoutineVariants(t *testing.T) {
	variants := AllRoutineVariants()
	require.Len(t, variants, 8)

	codes := map[string]bool{}
	for _, v := range variants {
		codes[v.code()] = true
	}
	assert.Len(t, codes, 8)
	assert.Equal(t, "aov", RoutineVariant{Filtered: true, Ordered: true, WithVectors: true}.code())
	assert.Equal(t, "sun", RoutineVariant{}.code())
}

func TestGenerateRoutines_Names(t *testing.T) {
	set, err := GenerateRoutines(tablesFor("m1"), testModel(vectordb.MetricCosine, vectordb.AggregationMin), true)
	require.NoError(t, err)

	var names []string
	for _, r := range set.All() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"vc_m1__s_sov", "vc_m1__s_son", "vc_m1__s_suv", "vc_m1__s_sun",
		"vc_m1__s_aov", "vc_m1__s_aon", "vc_m1__s_auv", "vc_m1__s_aun",
	}, names)
}

func TestGenerateRoutines_Operators(t *testing.T) {
	tests := []struct {
		metric   vectordb.MetricType
		agg      vectordb.MetricAggregationType
		operator string
		function string
	}{
		{vectordb.MetricCosine, vectordb.AggregationMin, "<=>", "min("},
		{vectordb.MetricEuclid, vectordb.AggregationAvg, "<->", "avg("},
		{vectordb.MetricDot, vectordb.AggregationMin, "<#>", "min("},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			set, err := GenerateRoutines(tablesFor("m1"), testModel(tt.metric, tt.agg), true)
			require.NoError(t, err)
			for _, r := range set.All() {
				assert.Contains(t, r.CreateSQL, tt.function+"p.vector "+tt.operator+" ")
			}
		})
	}
}

func TestGenerateRoutines_UnsupportedMetric(t *testing.T) {
	_, err := GenerateRoutines(tablesFor("m1"), testModel("MANHATTAN", vectordb.AggregationMin), true)
	var unsupported *vectordb.UnsupportedMetricError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "MANHATTAN", unsupported.Metric)

	_, err = GenerateRoutines(tablesFor("m1"), testModel(vectordb.MetricCosine, "MAX"), true)
	assert.Error(t, err)
}

func TestRoutine_Invocation(t *testing.T) {
	set, err := GenerateRoutines(tablesFor("m1"), testModel(vectordb.MetricCosine, vectordb.AggregationMin), true)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT * FROM "vc_m1__s_aov"(?::vector, ?::text, ?::float8, ?::boolean, ?::integer, ?::integer, ?::text)`,
		set.Invocation(RoutineVariant{Filtered: true, Ordered: true, WithVectors: true}))
	assert.Equal(t,
		`SELECT * FROM "vc_m1__s_sun"(?::vector, ?::text, ?::float8, ?::boolean)`,
		set.Invocation(RoutineVariant{}))
	assert.Equal(t,
		`DROP FUNCTION IF EXISTS "vc_m1__s_sun"(vector, text, float8, boolean)`,
		set.Routine(RoutineVariant{}).DropSQL)
}

func TestGenerateRoutines_Shapes(t *testing.T) {
	set, err := GenerateRoutines(tablesFor("m1"), testModel(vectordb.MetricCosine, vectordb.AggregationMin), true)
	require.NoError(t, err)

	filtered := set.Routine(RoutineVariant{Filtered: true, Ordered: true})
	assert.Contains(t, filtered.CreateSQL, "RETURN QUERY EXECUTE format(")
	assert.Contains(t, filtered.CreateSQL, "USING p_vector, p_user_id, p_max_distance, p_mean_only, p_limit, p_offset;")
	assert.Contains(t, filtered.CreateSQL, "LIMIT $5 OFFSET $6")
	assert.Contains(t, filtered.CreateSQL, "''[]''::jsonb")

	simple := set.Routine(RoutineVariant{Ordered: true, WithVectors: true})
	assert.Contains(t, simple.CreateSQL, "LIMIT p_limit OFFSET p_offset")
	assert.Contains(t, simple.CreateSQL, "'vector', pp.vector::real[]")
	assert.Contains(t, simple.CreateSQL, "WHERE NOT p_mean_only OR p.is_average")

	unordered := set.Routine(RoutineVariant{})
	assert.NotContains(t, unordered.CreateSQL, "LIMIT")
	assert.NotContains(t, unordered.CreateSQL, "pp.vector")

	for _, r := range set.All() {
		assert.True(t, strings.HasPrefix(r.CreateSQL, "CREATE OR REPLACE FUNCTION "), r.Name)
		assert.Contains(t, r.CreateSQL, "o.user_id IS NULL OR o.user_id =", r.Name)
	}
}

func TestGenerateRoutines_QueryCollectionsAreNotPersonalized(t *testing.T) {
	set, err := GenerateRoutines(tablesFor("m1_q"), testModel(vectordb.MetricCosine, vectordb.AggregationMin), false)
	require.NoError(t, err)
	for _, r := range set.All() {
		assert.NotContains(t, r.CreateSQL, "user_id IS NULL")
		assert.NotContains(t, r.CreateSQL, "NOT EXISTS")
	}
}
